package station

import (
	"chargepoint/internal"
	"chargepoint/internal/config"
	"chargepoint/metrics/counters"
	"chargepoint/ocpp"
	"chargepoint/ocpp/core"
	"chargepoint/ocpp/firmware"
	"chargepoint/ocpp/types"
	"chargepoint/utility"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
)

// ChargePoint is the station aggregate: connection lifecycle, connector state
// machines, firmware updates and the periodic reporting tasks. All mutable
// state behind mux; the connection flag is atomic so the correlator can check
// it without taking the aggregate lock.
type ChargePoint struct {
	conf         *config.Config
	logger       internal.LogHandler
	transport    Transport
	correlator   *Correlator
	ledger       *TransactionLedger
	source       Source
	messageLog   *MessageLog
	eventHandler internal.EventHandler
	database     internal.Database

	connection   atomic.Int32
	bootAccepted atomic.Bool

	mux           sync.Mutex
	connectors    map[int]*Connector
	firmware      FirmwareState
	heartbeatTask *task
	meterTask     *task
	firmwareTask  *task
}

func NewChargePoint(conf *config.Config, transport Transport, logger internal.LogHandler) *ChargePoint {
	cp := &ChargePoint{
		conf:       conf,
		logger:     logger,
		transport:  transport,
		ledger:     NewTransactionLedger(),
		source:     NewSource(conf.Simulator.Seed),
		messageLog: NewMessageLog(),
		connectors: make(map[int]*Connector),
		firmware:   FirmwareState{Status: firmware.StatusIdle},
	}
	cp.correlator = NewCorrelator(transport, logger, cp.messageLog, conf.Connection.ResponseTimeout, func() bool {
		return cp.connection.Load() == stateConnected
	})
	for i := 1; i <= conf.Station.Connectors; i++ {
		cp.connectors[i] = newConnector(i, conf.Station.MaxPower, conf.Station.DefaultPower)
	}
	transport.SetMessageHandler(cp.handleIncomingMessage)
	transport.SetErrorHandler(cp.handleTransportFailure)
	return cp
}

func (cp *ChargePoint) SetEventHandler(handler internal.EventHandler) {
	cp.eventHandler = handler
}

func (cp *ChargePoint) SetDatabase(database internal.Database) {
	cp.database = database
}

// SetSource replaces the measurement source; call before Connect.
func (cp *ChargePoint) SetSource(source Source) {
	cp.source = source
}

// ready reports whether protocol operations beyond the boot handshake are
// allowed.
func (cp *ChargePoint) ready() bool {
	return cp.connection.Load() == stateConnected && cp.bootAccepted.Load()
}

// Connect opens the transport and starts the boot handshake. A second call
// while connecting or connected is a no-op.
func (cp *ChargePoint) Connect(address string) ConnectionStatus {
	if !cp.connection.CompareAndSwap(stateDisconnected, stateConnecting) {
		cp.logger.Debug("connect ignored: connection already up")
		return cp.Connection()
	}
	cp.logger.FeatureEvent("Connection", cp.conf.Station.Id, "connecting to "+address)
	if err := cp.transport.Open(address); err != nil {
		cp.connection.Store(stateDisconnected)
		cp.logger.Error("connection failed", err)
		return StatusDisconnected
	}
	cp.connection.Store(stateConnected)
	counters.ObserveConnected(cp.conf.Station.Id, true)
	cp.messageLog.Append(DirectionReceived, "Connection", map[string]string{"url": address})
	cp.sendBootNotification()
	return StatusConnected
}

func (cp *ChargePoint) sendBootNotification() {
	request := core.NewBootNotificationRequest(cp.conf.Station.Vendor, cp.conf.Station.Model)
	request.ChargePointSerialNumber = cp.conf.Station.SerialNumber
	request.FirmwareVersion = cp.conf.Station.FirmwareVersion
	_, err := cp.correlator.Emit(request,
		cp.onBootResponse,
		func(err error) {
			cp.logger.Error("boot notification failed", err)
			cp.Disconnect()
		},
	)
	if err != nil {
		cp.logger.Error("boot notification", err)
		cp.Disconnect()
	}
}

func (cp *ChargePoint) onBootResponse(payload interface{}) {
	var response core.BootNotificationResponse
	if err := DecodePayload(payload, &response); err != nil {
		cp.logger.Error("decode boot response", err)
		cp.Disconnect()
		return
	}
	if response.Status != core.RegistrationStatusAccepted {
		cp.logger.Warn(fmt.Sprintf("registration not accepted: %s", response.Status))
		cp.Disconnect()
		return
	}
	cp.bootAccepted.Store(true)
	cp.logger.FeatureEvent(core.BootNotificationFeatureName, cp.conf.Station.Id,
		fmt.Sprintf("registration accepted, heartbeat interval %ds", response.Interval))

	heartbeatInterval := cp.conf.Intervals.Heartbeat
	if response.Interval > 0 {
		heartbeatInterval = time.Duration(response.Interval) * time.Second
	}
	cp.mux.Lock()
	if cp.heartbeatTask == nil {
		cp.heartbeatTask = startTask(heartbeatInterval, cp.SendHeartbeat)
	}
	if cp.meterTask == nil {
		cp.meterTask = startTask(cp.conf.Intervals.MeterReport, cp.broadcastMeterValues)
	}
	cp.mux.Unlock()
}

// Disconnect tears the session down: periodic tasks stop, in-flight requests
// fail, an in-flight firmware update fails, connector state is kept as is.
// Idempotent.
func (cp *ChargePoint) Disconnect() {
	wasUp := cp.connection.Swap(stateDisconnected) != stateDisconnected
	cp.bootAccepted.Store(false)

	cp.mux.Lock()
	heartbeat, meter := cp.heartbeatTask, cp.meterTask
	cp.heartbeatTask, cp.meterTask = nil, nil
	if wasUp {
		cp.failFirmware()
	}
	cp.mux.Unlock()
	if heartbeat != nil {
		heartbeat.cancel()
	}
	if meter != nil {
		meter.cancel()
	}
	if !wasUp {
		return
	}
	if err := cp.transport.Close(); err != nil {
		cp.logger.Warn(fmt.Sprintf("transport close: %s", err))
	}
	cp.correlator.FailAll(ErrNotConnected)
	counters.ObserveConnected(cp.conf.Station.Id, false)
	cp.messageLog.Append(DirectionSent, "Disconnect", struct{}{})
	cp.logger.FeatureEvent("Connection", cp.conf.Station.Id, "disconnected")
}

// SendHeartbeat is fired by the periodic task and may be called manually.
func (cp *ChargePoint) SendHeartbeat() {
	if !cp.ready() {
		cp.logger.Debug("heartbeat skipped: not registered")
		return
	}
	request := core.NewHeartbeatRequest()
	_, err := cp.correlator.Emit(request,
		func(payload interface{}) {
			var response core.HeartbeatResponse
			if err := DecodePayload(payload, &response); err != nil {
				cp.logger.Warn(fmt.Sprintf("decode heartbeat response: %s", err))
				return
			}
			if response.CurrentTime != nil {
				cp.logger.Debug("heartbeat: central time " + response.CurrentTime.Format(time.RFC3339))
			}
		},
		nil,
	)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("heartbeat: %s", err))
	}
}

// broadcastMeterValues reports meter values for every connector with an
// active transaction. Idle connectors report only on demand.
func (cp *ChargePoint) broadcastMeterValues() {
	if !cp.ready() {
		return
	}
	cp.mux.Lock()
	active := make([]int, 0, len(cp.connectors))
	for _, id := range sortedKeys(cp.connectors) {
		if cp.connectors[id].Transaction != nil {
			active = append(active, id)
		}
	}
	cp.mux.Unlock()
	for _, id := range active {
		cp.ReportMeterValues(id)
	}
}

func (cp *ChargePoint) connectorIds() []int {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	ids := make([]int, 0, len(cp.connectors))
	for id := range cp.connectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// setStatus changes a connector status and always notifies the central
// system, even when the status value repeats. Caller holds the state lock.
func (cp *ChargePoint) setStatus(connector *Connector, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) {
	connector.Status = status
	connector.ErrorCode = errorCode
	request := core.NewStatusNotificationRequest(connector.Id, status, errorCode, types.NewDateTime(time.Now()))
	if _, err := cp.correlator.Emit(request, nil, nil); err != nil {
		cp.logger.Warn(fmt.Sprintf("status notification for connector %d: %s", connector.Id, err))
	}
	if cp.eventHandler != nil {
		cp.eventHandler.OnStatusNotification(&internal.EventMessage{
			Type:        "StatusNotification",
			StationId:   cp.conf.Station.Id,
			ConnectorId: connector.Id,
			Time:        time.Now(),
			Status:      string(status),
			Info:        string(errorCode),
		})
	}
	counters.ObserveTransactions(cp.conf.Station.Id, cp.activeTransactionCount())
}

func (cp *ChargePoint) activeTransactionCount() int {
	count := 0
	for _, connector := range cp.connectors {
		if connector.Transaction != nil {
			count++
		}
	}
	return count
}

func (cp *ChargePoint) fireTransactionEvent(eventType string, connectorId int, transaction *Transaction, status string) {
	if cp.eventHandler == nil {
		return
	}
	event := &internal.EventMessage{
		Type:          eventType,
		StationId:     cp.conf.Station.Id,
		ConnectorId:   connectorId,
		Time:          time.Now(),
		IdTag:         transaction.IdTag,
		TransactionId: transaction.Id,
		Status:        status,
		Info:          fmt.Sprintf("meter %d", transaction.CurrentMeter),
	}
	if eventType == "TransactionStop" {
		cp.eventHandler.OnTransactionStop(event)
		return
	}
	cp.eventHandler.OnTransactionStart(event)
}

// handleTransportFailure runs on the transport goroutine when the connection
// drops or a write fails.
func (cp *ChargePoint) handleTransportFailure(err error) {
	cp.logger.Error("transport failure", err)
	cp.Disconnect()
}

// handleIncomingMessage runs on the transport goroutine for every frame the
// central system delivers.
func (cp *ChargePoint) handleIncomingMessage(data []byte) {
	cp.logger.RawDataEvent("IN", string(data))
	fields, err := utility.ParseJson(data)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("parse incoming message: %s", err))
		return
	}
	callType, err := MessageType(fields)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("incoming message type: %s", err))
		return
	}
	switch callType {
	case CallTypeResult:
		result, err := ParseResult(fields)
		if err != nil {
			cp.logger.Warn(fmt.Sprintf("parse call result: %s", err))
			return
		}
		if !cp.correlator.OnResponse(result.UniqueId, result.Payload) {
			cp.logger.Warn(fmt.Sprintf("unexpected call result id %s", result.UniqueId))
		}
	case CallTypeError:
		errorResult, err := ParseErrorResult(fields)
		if err != nil {
			cp.logger.Warn(fmt.Sprintf("parse call error: %s", err))
			return
		}
		remoteErr := fmt.Errorf("%s: %s", errorResult.ErrorCode, errorResult.ErrorDescription)
		if !cp.correlator.OnError(errorResult.UniqueId, remoteErr) {
			cp.logger.Warn(fmt.Sprintf("unexpected call error id %s", errorResult.UniqueId))
		}
	case CallTypeRequest:
		cp.handleIncomingRequest(fields)
	}
}

func (cp *ChargePoint) handleIncomingRequest(fields []interface{}) {
	callRequest, err := ParseRequest(fields)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("parse incoming request: %s", err))
		if len(fields) > 1 {
			if uniqueId, ok := fields[1].(string); ok {
				cp.sendCallError(uniqueId, "NotSupported", err.Error())
			}
		}
		return
	}
	cp.messageLog.Append(DirectionReceived, callRequest.GetFeatureName(), callRequest.Payload)
	counters.CountMessageReceived(callRequest.GetFeatureName())

	var confirmation ocpp.Response
	switch request := callRequest.Payload.(type) {
	case *core.RemoteStartTransactionRequest:
		confirmation = cp.onRemoteStartTransaction(request)
	case *core.RemoteStopTransactionRequest:
		confirmation = cp.onRemoteStopTransaction(request)
	case *core.ChangeAvailabilityRequest:
		confirmation = cp.onChangeAvailability(request)
	case *firmware.UpdateFirmwareRequest:
		confirmation = cp.onUpdateFirmware(request)
	default:
		cp.sendCallError(callRequest.UniqueId, "NotSupported", callRequest.GetFeatureName())
		return
	}
	cp.sendCallResult(callRequest.UniqueId, confirmation)
	cp.logger.FeatureEvent(callRequest.GetFeatureName(), cp.conf.Station.Id, "handled central system request")
}

func (cp *ChargePoint) sendCallResult(uniqueId string, confirmation ocpp.Response) {
	callResult := CreateCallResult(confirmation, uniqueId)
	data, err := callResult.MarshalJSON()
	if err != nil {
		cp.logger.Error("marshal call result", err)
		return
	}
	if err = cp.transport.Send(data); err != nil {
		cp.logger.Warn(fmt.Sprintf("send call result: %s", err))
		return
	}
	cp.messageLog.Append(DirectionSent, confirmation.GetFeatureName()+"Response", confirmation)
	counters.CountMessageSent(confirmation.GetFeatureName())
	cp.logger.RawDataEvent("OUT", string(data))
}

func (cp *ChargePoint) sendCallError(uniqueId, errorCode, description string) {
	callError := CreateCallError(uniqueId, errorCode, description)
	data, err := callError.MarshalJSON()
	if err != nil {
		cp.logger.Error("marshal call error", err)
		return
	}
	if err = cp.transport.Send(data); err != nil {
		cp.logger.Warn(fmt.Sprintf("send call error: %s", err))
		return
	}
	cp.logger.RawDataEvent("OUT", string(data))
}

func (cp *ChargePoint) onRemoteStartTransaction(request *core.RemoteStartTransactionRequest) ocpp.Response {
	connectorId := 0
	if request.ConnectorId != nil {
		connectorId = *request.ConnectorId
	}
	cp.mux.Lock()
	if connectorId == 0 {
		for _, id := range sortedKeys(cp.connectors) {
			if cp.connectors[id].Status == core.ChargePointStatusAvailable {
				connectorId = id
				break
			}
		}
	}
	connector, ok := cp.connectors[connectorId]
	startable := ok && cp.ready() && request.IdTag != "" && connector.Status == core.ChargePointStatusAvailable
	cp.mux.Unlock()
	if !startable {
		return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusRejected)
	}
	go cp.StartTransaction(connectorId, request.IdTag)
	return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusAccepted)
}

func (cp *ChargePoint) onRemoteStopTransaction(request *core.RemoteStopTransactionRequest) ocpp.Response {
	connectorId := 0
	cp.mux.Lock()
	for id, connector := range cp.connectors {
		if connector.Transaction != nil && connector.Transaction.Id == request.TransactionId {
			connectorId = id
			break
		}
	}
	cp.mux.Unlock()
	if connectorId == 0 {
		return core.NewRemoteStopTransactionResponse(types.RemoteStartStopStatusRejected)
	}
	go cp.stopTransaction(connectorId, core.ReasonRemote)
	return core.NewRemoteStopTransactionResponse(types.RemoteStartStopStatusAccepted)
}

func (cp *ChargePoint) onChangeAvailability(request *core.ChangeAvailabilityRequest) ocpp.Response {
	target := core.ChargePointStatusAvailable
	if request.Type == core.AvailabilityTypeInoperative {
		target = core.ChargePointStatusUnavailable
	}
	ids := cp.connectorIds()
	if request.ConnectorId != 0 {
		cp.mux.Lock()
		_, ok := cp.connectors[request.ConnectorId]
		cp.mux.Unlock()
		if !ok {
			return core.NewChangeAvailabilityResponse(core.AvailabilityStatusRejected)
		}
		ids = []int{request.ConnectorId}
	}
	// connectors holding a transaction keep their state; the change for them
	// is deferred, reported as Scheduled
	scheduled := false
	for _, id := range ids {
		cp.mux.Lock()
		busy := cp.connectors[id].Transaction != nil
		cp.mux.Unlock()
		if busy {
			scheduled = true
			continue
		}
		cp.SetConnectorStatus(id, target, core.NoError)
	}
	if scheduled {
		return core.NewChangeAvailabilityResponse(core.AvailabilityStatusScheduled)
	}
	return core.NewChangeAvailabilityResponse(core.AvailabilityStatusAccepted)
}

func (cp *ChargePoint) onUpdateFirmware(request *firmware.UpdateFirmwareRequest) ocpp.Response {
	go cp.StartFirmwareUpdate(request.Location)
	return firmware.NewUpdateFirmwareResponse()
}

// Connection returns the externally visible connection state.
func (cp *ChargePoint) Connection() ConnectionStatus {
	switch cp.connection.Load() {
	case stateConnected:
		return StatusConnected
	case stateConnecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// Connectors returns point-in-time snapshots ordered by connector id.
func (cp *ChargePoint) Connectors() []ConnectorSnapshot {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	snapshots := make([]ConnectorSnapshot, 0, len(cp.connectors))
	for _, id := range sortedKeys(cp.connectors) {
		snapshots = append(snapshots, cp.connectors[id].snapshot())
	}
	return snapshots
}

// Firmware returns a point-in-time snapshot of the update state machine.
func (cp *ChargePoint) Firmware() FirmwareSnapshot {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	return cp.firmwareSnapshot()
}

// Messages returns the recent protocol exchanges, oldest first.
func (cp *ChargePoint) Messages() []LoggedMessage {
	return cp.messageLog.Snapshot()
}

func sortedKeys(connectors map[int]*Connector) []int {
	keys := make([]int, 0, len(connectors))
	for id := range connectors {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}
