package station

import (
	"chargepoint/internal"
	"chargepoint/metrics/counters"
	"chargepoint/ocpp"
	"chargepoint/utility"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type ResponseHandler func(payload interface{})

type FailureHandler func(err error)

// PendingRequest is one in-flight protocol exchange awaiting its CallResult.
type PendingRequest struct {
	Id          string
	MessageType string
	IssuedAt    time.Time
	onResponse  ResponseHandler
	onFailure   FailureHandler
	timer       *time.Timer
}

// Correlator assigns unique ids to outgoing requests, pairs incoming results
// with them and times out the ones the central system never answers. Exactly
// one continuation branch runs per request: a late result arriving after the
// timeout fired is discarded.
type Correlator struct {
	mux        sync.Mutex
	pending    map[string]*PendingRequest
	transport  Transport
	logger     internal.LogHandler
	messageLog *MessageLog
	validate   *validator.Validate
	timeout    time.Duration
	connected  func() bool
}

func NewCorrelator(transport Transport, logger internal.LogHandler, messageLog *MessageLog, timeout time.Duration, connected func() bool) *Correlator {
	return &Correlator{
		pending:    make(map[string]*PendingRequest),
		transport:  transport,
		logger:     logger,
		messageLog: messageLog,
		validate:   validator.New(),
		timeout:    timeout,
		connected:  connected,
	}
}

// Emit registers a pending request and hands the framed call to the transport.
// It returns as soon as the data is on its way; the continuation runs later on
// whichever goroutine delivers the result or the timeout.
func (c *Correlator) Emit(request ocpp.Request, onResponse ResponseHandler, onFailure FailureHandler) (string, error) {
	if !c.connected() {
		return "", ErrNotConnected
	}
	if err := c.validate.Struct(request); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", request.GetFeatureName(), err)
	}
	uniqueId := utility.NewUUID()
	call := CreateCall(request, uniqueId)
	data, err := call.MarshalJSON()
	if err != nil {
		return "", err
	}

	pending := &PendingRequest{
		Id:          uniqueId,
		MessageType: request.GetFeatureName(),
		IssuedAt:    time.Now(),
		onResponse:  onResponse,
		onFailure:   onFailure,
	}
	c.mux.Lock()
	c.pending[uniqueId] = pending
	pending.timer = time.AfterFunc(c.timeout, func() {
		c.OnTimeout(uniqueId)
	})
	c.mux.Unlock()

	if err = c.transport.Send(data); err != nil {
		c.take(uniqueId)
		return "", err
	}
	c.messageLog.Append(DirectionSent, pending.MessageType, request)
	counters.CountMessageSent(pending.MessageType)
	c.logger.RawDataEvent("OUT", string(data))
	return uniqueId, nil
}

// OnResponse resolves the pending request matching uniqueId, if still in
// flight, and runs its success continuation.
func (c *Correlator) OnResponse(uniqueId string, payload interface{}) bool {
	pending := c.take(uniqueId)
	if pending == nil {
		return false
	}
	c.messageLog.Append(DirectionReceived, pending.MessageType+"Response", payload)
	counters.CountMessageReceived(pending.MessageType)
	if pending.onResponse != nil {
		pending.onResponse(payload)
	}
	return true
}

// OnError resolves the pending request with a remote error.
func (c *Correlator) OnError(uniqueId string, err error) bool {
	pending := c.take(uniqueId)
	if pending == nil {
		return false
	}
	c.logger.Warn(fmt.Sprintf("error result for %s: %s", pending.MessageType, err))
	if pending.onFailure != nil {
		pending.onFailure(err)
	}
	return true
}

// OnTimeout fires when no result arrived within the configured window. The
// exchange fails; the connection stays up.
func (c *Correlator) OnTimeout(uniqueId string) {
	pending := c.take(uniqueId)
	if pending == nil {
		return
	}
	c.logger.Warn(fmt.Sprintf("timeout waiting for response to %s (%s)", pending.MessageType, uniqueId))
	counters.CountRequestTimeout(pending.MessageType)
	if pending.onFailure != nil {
		pending.onFailure(ErrRequestTimeout)
	}
}

// FailAll resolves every in-flight request as timed out; used when the
// transport drops.
func (c *Correlator) FailAll(err error) {
	c.mux.Lock()
	pending := c.pending
	c.pending = make(map[string]*PendingRequest)
	c.mux.Unlock()
	for _, p := range pending {
		p.timer.Stop()
		if p.onFailure != nil {
			p.onFailure(err)
		}
	}
}

func (c *Correlator) PendingCount() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.pending)
}

// take removes and returns the pending request, or nil if it was already
// resolved. This is the at-most-once gate for continuations.
func (c *Correlator) take(uniqueId string) *PendingRequest {
	c.mux.Lock()
	defer c.mux.Unlock()
	pending, ok := c.pending[uniqueId]
	if !ok {
		return nil
	}
	delete(c.pending, uniqueId)
	if pending.timer != nil {
		pending.timer.Stop()
	}
	return pending
}
