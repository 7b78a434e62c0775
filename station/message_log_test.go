package station

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLogOrder(t *testing.T) {
	log := NewMessageLog()
	log.Append(DirectionSent, "BootNotification", nil)
	log.Append(DirectionReceived, "BootNotificationResponse", nil)

	snapshot := log.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "msg_1", snapshot[0].Id)
	assert.Equal(t, "BootNotification", snapshot[0].MessageType)
	assert.Equal(t, DirectionSent, snapshot[0].Direction)
	assert.Equal(t, "msg_2", snapshot[1].Id)
	assert.Equal(t, DirectionReceived, snapshot[1].Direction)
}

func TestMessageLogEvictsOldest(t *testing.T) {
	log := NewMessageLog()
	for i := 0; i < messageLogCapacity+10; i++ {
		log.Append(DirectionSent, fmt.Sprintf("Heartbeat-%d", i), nil)
	}
	assert.Equal(t, messageLogCapacity, log.Size())

	snapshot := log.Snapshot()
	require.Len(t, snapshot, messageLogCapacity)
	// the ten oldest entries are gone, ids keep counting
	assert.Equal(t, "msg_11", snapshot[0].Id)
	assert.Equal(t, "Heartbeat-10", snapshot[0].MessageType)
	assert.Equal(t, fmt.Sprintf("msg_%d", messageLogCapacity+10), snapshot[len(snapshot)-1].Id)
}

func TestTransactionLedgerIds(t *testing.T) {
	ledger := NewTransactionLedger()
	assert.Equal(t, 1000, ledger.NextId())
	assert.Equal(t, 1001, ledger.NextId())
	assert.Equal(t, 1002, ledger.NextId())
}
