package transport

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepoint/internal/config"
	"chargepoint/station"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	conf, err := config.NewConfig()
	require.NoError(t, err)
	conf.Simulator.LatencyMin = time.Millisecond
	conf.Simulator.LatencyMax = 2 * time.Millisecond
	conf.Simulator.Seed = 7
	return NewSimulator(conf)
}

func TestSimulatorAnswersCalls(t *testing.T) {
	sim := newTestSimulator(t)
	frames := make(chan []byte, 1)
	sim.SetMessageHandler(func(data []byte) { frames <- data })
	require.NoError(t, sim.Open("sim://central"))

	call := []byte(`[2,"req-1","BootNotification",{"chargePointVendor":"ElectroTech","chargePointModel":"FastCharge Pro X2"}]`)
	require.NoError(t, sim.Send(call))

	select {
	case frame := <-frames:
		var fields []interface{}
		require.NoError(t, json.Unmarshal(frame, &fields))
		require.Len(t, fields, 3)
		assert.Equal(t, float64(station.CallTypeResult), fields[0])
		assert.Equal(t, "req-1", fields[1])
		payload := fields[2].(map[string]interface{})
		assert.Equal(t, "Accepted", payload["status"])
	case <-time.After(time.Second):
		t.Fatal("simulator never answered")
	}
}

func TestSimulatorRejectsBoot(t *testing.T) {
	sim := newTestSimulator(t)
	sim.RejectBoot(true)
	frames := make(chan []byte, 1)
	sim.SetMessageHandler(func(data []byte) { frames <- data })
	require.NoError(t, sim.Open("sim://central"))

	call := []byte(`[2,"req-2","BootNotification",{"chargePointVendor":"V","chargePointModel":"M"}]`)
	require.NoError(t, sim.Send(call))

	select {
	case frame := <-frames:
		var fields []interface{}
		require.NoError(t, json.Unmarshal(frame, &fields))
		payload := fields[2].(map[string]interface{})
		assert.Equal(t, "Rejected", payload["status"])
	case <-time.After(time.Second):
		t.Fatal("simulator never answered")
	}
}

func TestSimulatorAllocatesTransactionIds(t *testing.T) {
	sim := newTestSimulator(t)
	frames := make(chan []byte, 2)
	sim.SetMessageHandler(func(data []byte) { frames <- data })
	require.NoError(t, sim.Open("sim://central"))

	call := []byte(`[2,"req-3","StartTransaction",{"connectorId":1,"idTag":"T","meterStart":0,"timestamp":"2024-01-01T00:00:00Z"}]`)
	require.NoError(t, sim.Send(call))
	call = []byte(`[2,"req-4","StartTransaction",{"connectorId":2,"idTag":"T","meterStart":0,"timestamp":"2024-01-01T00:00:00Z"}]`)
	require.NoError(t, sim.Send(call))

	ids := make(map[float64]bool)
	for i := 0; i < 2; i++ {
		select {
		case frame := <-frames:
			var fields []interface{}
			require.NoError(t, json.Unmarshal(frame, &fields))
			payload := fields[2].(map[string]interface{})
			ids[payload["transactionId"].(float64)] = true
		case <-time.After(time.Second):
			t.Fatal("simulator never answered")
		}
	}
	assert.Len(t, ids, 2, "transaction ids must be distinct")
}

func TestSimulatorSendWhenClosed(t *testing.T) {
	sim := newTestSimulator(t)
	require.NoError(t, sim.Open("sim://central"))
	require.NoError(t, sim.Close())

	err := sim.Send([]byte(`[2,"req-5","Heartbeat",{}]`))
	assert.ErrorIs(t, err, station.ErrNotConnected)
}

func TestSimulatorPush(t *testing.T) {
	sim := newTestSimulator(t)
	frames := make(chan []byte, 1)
	sim.SetMessageHandler(func(data []byte) { frames <- data })
	require.NoError(t, sim.Open("sim://central"))

	uniqueId := sim.Push("RemoteStartTransaction", map[string]interface{}{"connectorId": 1, "idTag": "R"})
	require.NotEmpty(t, uniqueId)

	select {
	case frame := <-frames:
		var fields []interface{}
		require.NoError(t, json.Unmarshal(frame, &fields))
		require.Len(t, fields, 4)
		assert.Equal(t, float64(station.CallTypeRequest), fields[0])
		assert.Equal(t, uniqueId, fields[1])
		assert.Equal(t, "RemoteStartTransaction", fields[2])
	case <-time.After(time.Second):
		t.Fatal("pushed call never arrived")
	}
}

func TestSimulatorFailConnection(t *testing.T) {
	sim := newTestSimulator(t)
	failures := make(chan error, 1)
	sim.SetErrorHandler(func(err error) { failures <- err })
	require.NoError(t, sim.Open("sim://central"))

	cause := errors.New("link down")
	sim.FailConnection(cause)

	select {
	case err := <-failures:
		assert.Equal(t, cause, err)
	case <-time.After(time.Second):
		t.Fatal("error handler never ran")
	}
	assert.ErrorIs(t, sim.Send([]byte(`[2,"req-6","Heartbeat",{}]`)), station.ErrNotConnected)
}
