package transport

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"chargepoint/internal/config"
	"chargepoint/station"
	"chargepoint/utility"
)

// Simulator plays the central system without a network. It answers every Call
// after an injected latency, can originate central-side Calls through Push and
// can drop the connection on demand. All deliveries happen on their own
// goroutines, matching the live transport contract.
type Simulator struct {
	mux               sync.Mutex
	connected         bool
	rejectBoot        bool
	latencyMin        time.Duration
	latencyMax        time.Duration
	rnd               *rand.Rand
	nextTransactionId int
	messageHandler    func(data []byte)
	errorHandler      func(err error)
}

func NewSimulator(conf *config.Config) *Simulator {
	seed := conf.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		latencyMin:        conf.Simulator.LatencyMin,
		latencyMax:        conf.Simulator.LatencyMax,
		rnd:               rand.New(rand.NewSource(seed)),
		nextTransactionId: 1,
	}
}

func (s *Simulator) SetMessageHandler(handler func(data []byte)) {
	s.messageHandler = handler
}

func (s *Simulator) SetErrorHandler(handler func(err error)) {
	s.errorHandler = handler
}

// RejectBoot makes the simulated central system refuse registration.
func (s *Simulator) RejectBoot(reject bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.rejectBoot = reject
}

func (s *Simulator) Open(address string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.connected = true
	return nil
}

func (s *Simulator) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.connected = false
	return nil
}

// Send accepts an outgoing frame from the station. Calls get an answer after
// the configured latency; results to pushed calls are absorbed.
func (s *Simulator) Send(data []byte) error {
	s.mux.Lock()
	connected := s.connected
	s.mux.Unlock()
	if !connected {
		return station.ErrNotConnected
	}
	fields, err := utility.ParseJson(data)
	if err != nil {
		return err
	}
	callType, err := station.MessageType(fields)
	if err != nil {
		return err
	}
	if callType != station.CallTypeRequest || len(fields) < 4 {
		return nil
	}
	uniqueId, ok := fields[1].(string)
	if !ok {
		return nil
	}
	action, ok := fields[2].(string)
	if !ok {
		return nil
	}
	go s.answer(uniqueId, action)
	return nil
}

func (s *Simulator) answer(uniqueId, action string) {
	time.Sleep(s.latency())
	payload := s.responsePayload(action)
	frame, err := json.Marshal([]interface{}{int(station.CallTypeResult), uniqueId, payload})
	if err != nil {
		return
	}
	s.deliver(frame)
}

func (s *Simulator) responsePayload(action string) interface{} {
	s.mux.Lock()
	defer s.mux.Unlock()
	switch action {
	case "BootNotification":
		status := "Accepted"
		if s.rejectBoot {
			status = "Rejected"
		}
		return map[string]interface{}{
			"status":      status,
			"currentTime": time.Now().UTC().Format(time.RFC3339),
			"interval":    0,
		}
	case "Heartbeat":
		return map[string]interface{}{
			"currentTime": time.Now().UTC().Format(time.RFC3339),
		}
	case "StartTransaction":
		transactionId := s.nextTransactionId
		s.nextTransactionId++
		return map[string]interface{}{
			"idTagInfo":     map[string]string{"status": "Accepted"},
			"transactionId": transactionId,
		}
	case "StopTransaction":
		return map[string]interface{}{
			"idTagInfo": map[string]string{"status": "Accepted"},
		}
	default:
		return map[string]interface{}{}
	}
}

// Push originates a central-system Call towards the station and returns its
// unique id. The station's CallResult is absorbed by Send.
func (s *Simulator) Push(action string, payload interface{}) string {
	uniqueId := utility.NewUUID()
	frame, err := json.Marshal([]interface{}{int(station.CallTypeRequest), uniqueId, action, payload})
	if err != nil {
		return ""
	}
	go s.deliver(frame)
	return uniqueId
}

// FailConnection simulates a transport drop: the station learns about it
// through its error handler, the way a broken socket would surface.
func (s *Simulator) FailConnection(err error) {
	s.mux.Lock()
	s.connected = false
	handler := s.errorHandler
	s.mux.Unlock()
	if handler != nil {
		go handler(err)
	}
}

func (s *Simulator) deliver(frame []byte) {
	s.mux.Lock()
	connected := s.connected
	handler := s.messageHandler
	s.mux.Unlock()
	if !connected || handler == nil {
		return
	}
	handler(frame)
}

func (s *Simulator) latency() time.Duration {
	if s.latencyMax <= s.latencyMin {
		return s.latencyMin
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.latencyMin + time.Duration(s.rnd.Int63n(int64(s.latencyMax-s.latencyMin)))
}
