package station

import (
	"chargepoint/internal"
	"chargepoint/metrics/counters"
	"chargepoint/ocpp/core"
	"chargepoint/ocpp/types"
	"chargepoint/utility"
	"fmt"
	"time"
)

// MinPowerLimit is the lowest charging power a connector can be limited to, W.
const MinPowerLimit = 1000

// Transaction is one charging session bound to a connector, from authorization
// to completion.
type Transaction struct {
	Id           int
	ConnectorId  int
	IdTag        string
	TimeStart    time.Time
	MeterStart   int
	CurrentMeter int
}

// Connector is one physical charging socket. A transaction may be attached
// only while the status permits it; the accrual task lives no longer than the
// transaction that owns it.
type Connector struct {
	Id          int
	Status      core.ChargePointStatus
	ErrorCode   core.ChargePointErrorCode
	Transaction *Transaction
	PowerLimit  int
	MaxPower    int
	accrual     *task
}

func newConnector(id, maxPower, defaultPower int) *Connector {
	return &Connector{
		Id:         id,
		Status:     core.ChargePointStatusAvailable,
		ErrorCode:  core.NoError,
		PowerLimit: defaultPower,
		MaxPower:   maxPower,
	}
}

func (c *Connector) cancelAccrual() {
	if c.accrual != nil {
		c.accrual.cancel()
		c.accrual = nil
	}
}

type TransactionSnapshot struct {
	Id           int       `json:"transaction_id"`
	ConnectorId  int       `json:"connector_id"`
	IdTag        string    `json:"id_tag"`
	TimeStart    time.Time `json:"time_start"`
	MeterStart   int       `json:"meter_start"`
	CurrentMeter int       `json:"current_meter"`
}

type ConnectorSnapshot struct {
	Id          int                  `json:"connector_id"`
	Status      string               `json:"status"`
	ErrorCode   string               `json:"error_code"`
	PowerLimit  int                  `json:"power_limit"`
	MaxPower    int                  `json:"max_power"`
	Transaction *TransactionSnapshot `json:"transaction,omitempty"`
}

func (c *Connector) snapshot() ConnectorSnapshot {
	snapshot := ConnectorSnapshot{
		Id:         c.Id,
		Status:     string(c.Status),
		ErrorCode:  string(c.ErrorCode),
		PowerLimit: c.PowerLimit,
		MaxPower:   c.MaxPower,
	}
	if c.Transaction != nil {
		transaction := TransactionSnapshot{
			Id:           c.Transaction.Id,
			ConnectorId:  c.Transaction.ConnectorId,
			IdTag:        c.Transaction.IdTag,
			TimeStart:    c.Transaction.TimeStart,
			MeterStart:   c.Transaction.MeterStart,
			CurrentMeter: c.Transaction.CurrentMeter,
		}
		snapshot.Transaction = &transaction
	}
	return snapshot
}

// StartTransaction begins a charging session on an Available connector. The
// guard is advisory: callers are expected to have checked already, so a failed
// precondition drops the call without raising.
func (cp *ChargePoint) StartTransaction(connectorId int, idTag string) {
	cp.mux.Lock()
	connector, ok := cp.connectors[connectorId]
	if !ok || idTag == "" || !cp.ready() || connector.Status != core.ChargePointStatusAvailable {
		cp.mux.Unlock()
		cp.logger.Debug(fmt.Sprintf("start transaction rejected for connector %d", connectorId))
		return
	}
	transaction := &Transaction{
		Id:          cp.ledger.NextId(),
		ConnectorId: connectorId,
		IdTag:       idTag,
		TimeStart:   time.Now(),
		MeterStart:  cp.source.MeterStart(),
	}
	transaction.CurrentMeter = transaction.MeterStart
	connector.Transaction = transaction
	cp.setStatus(connector, core.ChargePointStatusPreparing, core.NoError)
	request := core.NewStartTransactionRequest(connectorId, idTag, transaction.MeterStart, types.NewDateTime(transaction.TimeStart))
	cp.mux.Unlock()

	counters.CountTransaction(cp.conf.Station.Id)
	_, err := cp.correlator.Emit(request,
		func(payload interface{}) { cp.onStartTransactionResponse(connector, transaction, payload) },
		func(err error) { cp.abortTransaction(connector, transaction, err) },
	)
	if err != nil {
		cp.abortTransaction(connector, transaction, err)
	}
}

func (cp *ChargePoint) onStartTransactionResponse(connector *Connector, transaction *Transaction, payload interface{}) {
	var response core.StartTransactionResponse
	if err := DecodePayload(payload, &response); err != nil {
		cp.abortTransaction(connector, transaction, err)
		return
	}
	if response.IdTagInfo != nil && response.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		cp.abortTransaction(connector, transaction, fmt.Errorf("authorization status %s", response.IdTagInfo.Status))
		return
	}
	cp.mux.Lock()
	if connector.Transaction != transaction || connector.Status != core.ChargePointStatusPreparing {
		cp.mux.Unlock()
		return
	}
	cp.setStatus(connector, core.ChargePointStatusCharging, core.NoError)
	connector.accrual = startTask(cp.conf.Intervals.MeterAccrual, func() {
		cp.accrueEnergy(connector.Id)
	})
	cp.mux.Unlock()

	cp.fireTransactionEvent("TransactionStart", connector.Id, transaction, string(core.ChargePointStatusCharging))
	cp.logger.FeatureEvent(core.StartTransactionFeatureName, "",
		fmt.Sprintf("started transaction #%d on connector %d", transaction.Id, connector.Id))
}

// abortTransaction rolls a session back when the start exchange fails or is
// rejected before charging began.
func (cp *ChargePoint) abortTransaction(connector *Connector, transaction *Transaction, cause error) {
	cp.mux.Lock()
	if connector.Transaction != transaction {
		cp.mux.Unlock()
		return
	}
	connector.cancelAccrual()
	connector.Transaction = nil
	cp.setStatus(connector, core.ChargePointStatusAvailable, core.NoError)
	cp.mux.Unlock()
	cp.logger.Warn(fmt.Sprintf("transaction #%d aborted: %s", transaction.Id, cause))
}

// accrueEnergy is the per-connector charging tick. The meter register never
// decreases.
func (cp *ChargePoint) accrueEnergy(connectorId int) {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	connector, ok := cp.connectors[connectorId]
	if !ok || connector.Transaction == nil || connector.Status != core.ChargePointStatusCharging {
		return
	}
	increment := cp.source.Increment()
	if increment <= 0 {
		return
	}
	connector.Transaction.CurrentMeter += increment
	counters.AddEnergy(cp.conf.Station.Id, increment)
}

// StopTransaction ends the active charging session on a connector.
func (cp *ChargePoint) StopTransaction(connectorId int) {
	cp.stopTransaction(connectorId, core.ReasonLocal)
}

func (cp *ChargePoint) stopTransaction(connectorId int, reason core.Reason) {
	cp.mux.Lock()
	connector, ok := cp.connectors[connectorId]
	if !ok || connector.Transaction == nil {
		cp.mux.Unlock()
		cp.logger.Debug(fmt.Sprintf("stop transaction rejected for connector %d", connectorId))
		return
	}
	// the accrual task must not outlive the Finishing transition
	connector.cancelAccrual()
	transaction := connector.Transaction
	cp.setStatus(connector, core.ChargePointStatusFinishing, core.NoError)
	request := core.NewStopTransactionRequest(transaction.Id, transaction.CurrentMeter, types.NewDateTime(time.Now()), reason)
	cp.mux.Unlock()

	complete := func() { cp.completeStop(connector, transaction, reason) }
	_, err := cp.correlator.Emit(request,
		func(payload interface{}) { complete() },
		func(err error) { complete() },
	)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("stop transaction #%d: %s", transaction.Id, err))
		complete()
	}
}

func (cp *ChargePoint) completeStop(connector *Connector, transaction *Transaction, reason core.Reason) {
	cp.mux.Lock()
	if connector.Transaction != transaction {
		cp.mux.Unlock()
		return
	}
	connector.Transaction = nil
	cp.setStatus(connector, core.ChargePointStatusAvailable, core.NoError)
	cp.mux.Unlock()

	if cp.database != nil {
		record := &internal.TransactionRecord{
			Id:          transaction.Id,
			ConnectorId: transaction.ConnectorId,
			StationId:   cp.conf.Station.Id,
			IdTag:       transaction.IdTag,
			MeterStart:  transaction.MeterStart,
			MeterStop:   transaction.CurrentMeter,
			TimeStart:   transaction.TimeStart,
			TimeStop:    time.Now(),
			Reason:      string(reason),
		}
		if err := cp.database.AddTransaction(record); err != nil {
			cp.logger.Error("add transaction", err)
		}
	}
	cp.fireTransactionEvent("TransactionStop", connector.Id, transaction, string(core.ChargePointStatusAvailable))
	cp.logger.FeatureEvent(core.StopTransactionFeatureName, "",
		fmt.Sprintf("finished transaction #%d on connector %d, meter stop %d", transaction.Id, connector.Id, transaction.CurrentMeter))
}

// SetConnectorStatus is the operator override. It always emits a status
// notification, and it refuses to leave a status/transaction combination that
// breaks the invariant: moving to a status that cannot hold a transaction
// clears the active one.
func (cp *ChargePoint) SetConnectorStatus(connectorId int, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) {
	cp.mux.Lock()
	connector, ok := cp.connectors[connectorId]
	if !ok {
		cp.mux.Unlock()
		cp.logger.Debug(fmt.Sprintf("status change rejected for unknown connector %d", connectorId))
		return
	}
	if !core.StatusAllowsTransaction(status) && connector.Transaction != nil {
		cp.logger.Warn(fmt.Sprintf("clearing transaction #%d on connector %d for status %s",
			connector.Transaction.Id, connectorId, status))
		connector.cancelAccrual()
		connector.Transaction = nil
	}
	cp.setStatus(connector, status, errorCode)
	cp.mux.Unlock()
}

// SetPowerLimit clamps the requested limit into [MinPowerLimit, MaxPower] and
// returns the applied value. Pure state update, no protocol exchange.
func (cp *ChargePoint) SetPowerLimit(connectorId, watts int) int {
	cp.mux.Lock()
	defer cp.mux.Unlock()
	connector, ok := cp.connectors[connectorId]
	if !ok {
		return 0
	}
	applied := utility.Clamp(watts, MinPowerLimit, connector.MaxPower)
	connector.PowerLimit = applied
	cp.logger.FeatureEvent("PowerLimit", "", fmt.Sprintf("connector %d limited to %d W", connectorId, applied))
	return applied
}

// ReportMeterValues emits an energy and power snapshot for one connector. With
// an active transaction the energy is its current register, otherwise an
// independent idle reading.
func (cp *ChargePoint) ReportMeterValues(connectorId int) {
	cp.mux.Lock()
	connector, ok := cp.connectors[connectorId]
	if !ok {
		cp.mux.Unlock()
		return
	}
	energy := cp.source.IdleMeter()
	var transactionId *int
	if connector.Transaction != nil {
		energy = connector.Transaction.CurrentMeter
		id := connector.Transaction.Id
		transactionId = &id
	}
	power := cp.source.PowerSample(connector.PowerLimit)
	sampled := []types.SampledValue{
		{
			Value:     fmt.Sprintf("%d", energy),
			Context:   types.ReadingContextSamplePeriodic,
			Measurand: types.MeasurandEnergyActiveImportRegister,
			Unit:      types.UnitOfMeasureWh,
		},
		{
			Value:     fmt.Sprintf("%d", power),
			Context:   types.ReadingContextSamplePeriodic,
			Measurand: types.MeasurandPowerActiveImport,
			Unit:      types.UnitOfMeasureW,
		},
	}
	request := core.NewMeterValuesRequest(connectorId, []types.MeterValue{
		{Timestamp: types.NewDateTime(time.Now()), SampledValue: sampled},
	})
	request.TransactionId = transactionId
	cp.mux.Unlock()

	if _, err := cp.correlator.Emit(request, nil, nil); err != nil {
		cp.logger.Warn(fmt.Sprintf("meter values for connector %d: %s", connectorId, err))
	}
}
