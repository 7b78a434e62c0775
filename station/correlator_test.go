package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepoint/ocpp/core"
)

func newTestCorrelator(transport Transport, timeout time.Duration) *Correlator {
	return NewCorrelator(transport, &nopLogger{}, NewMessageLog(), timeout, func() bool { return true })
}

func TestCorrelatorResolvesResponseOnce(t *testing.T) {
	transport := &fakeTransport{}
	correlator := newTestCorrelator(transport, time.Second)

	responses := make(chan interface{}, 2)
	uniqueId, err := correlator.Emit(core.NewHeartbeatRequest(),
		func(payload interface{}) { responses <- payload },
		func(err error) { t.Errorf("unexpected failure: %v", err) },
	)
	require.NoError(t, err)
	require.NotEmpty(t, uniqueId)
	assert.Equal(t, 1, correlator.PendingCount())

	require.True(t, correlator.OnResponse(uniqueId, map[string]interface{}{"currentTime": "2024-01-01T00:00:00Z"}))
	assert.Equal(t, 0, correlator.PendingCount())
	select {
	case <-responses:
	case <-time.After(time.Second):
		t.Fatal("response continuation did not run")
	}

	// a second delivery for the same id is discarded
	assert.False(t, correlator.OnResponse(uniqueId, nil))
	assert.Len(t, responses, 0)
}

func TestCorrelatorTimeout(t *testing.T) {
	transport := &fakeTransport{}
	correlator := newTestCorrelator(transport, 20*time.Millisecond)

	failures := make(chan error, 1)
	uniqueId, err := correlator.Emit(core.NewHeartbeatRequest(),
		func(payload interface{}) { t.Error("unexpected response") },
		func(err error) { failures <- err },
	)
	require.NoError(t, err)

	select {
	case failure := <-failures:
		assert.Equal(t, ErrRequestTimeout, failure)
	case <-time.After(time.Second):
		t.Fatal("timeout continuation did not run")
	}
	// a result arriving after the timeout is ignored
	assert.False(t, correlator.OnResponse(uniqueId, nil))
	assert.Equal(t, 0, correlator.PendingCount())
}

func TestCorrelatorRejectsWhenDisconnected(t *testing.T) {
	transport := &fakeTransport{}
	correlator := NewCorrelator(transport, &nopLogger{}, NewMessageLog(), time.Second, func() bool { return false })

	_, err := correlator.Emit(core.NewHeartbeatRequest(), nil, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, transport.sentCount())
}

func TestCorrelatorRejectsInvalidPayload(t *testing.T) {
	transport := &fakeTransport{}
	correlator := newTestCorrelator(transport, time.Second)

	// vendor and model are required
	_, err := correlator.Emit(core.NewBootNotificationRequest("", ""), nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, transport.sentCount())
	assert.Equal(t, 0, correlator.PendingCount())
}

func TestCorrelatorRollsBackFailedSend(t *testing.T) {
	transport := &fakeTransport{failSend: ErrNotConnected}
	correlator := newTestCorrelator(transport, time.Second)

	failures := 0
	_, err := correlator.Emit(core.NewHeartbeatRequest(), nil, func(err error) { failures++ })
	assert.Error(t, err)
	assert.Equal(t, 0, correlator.PendingCount())
	// send errors are reported to the caller, not the failure continuation
	assert.Equal(t, 0, failures)
}

func TestCorrelatorFailAll(t *testing.T) {
	transport := &fakeTransport{}
	correlator := newTestCorrelator(transport, time.Minute)

	failures := make(chan error, 3)
	for i := 0; i < 3; i++ {
		_, err := correlator.Emit(core.NewHeartbeatRequest(), nil, func(err error) { failures <- err })
		require.NoError(t, err)
	}
	require.Equal(t, 3, correlator.PendingCount())

	correlator.FailAll(ErrNotConnected)
	assert.Equal(t, 0, correlator.PendingCount())
	for i := 0; i < 3; i++ {
		select {
		case failure := <-failures:
			assert.Equal(t, ErrNotConnected, failure)
		case <-time.After(time.Second):
			t.Fatal("failure continuation did not run")
		}
	}
}
