package station

import (
	"fmt"
	"sync"
	"time"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"

	messageLogCapacity = 100
)

// LoggedMessage is one protocol exchange as seen by observers. Immutable once
// appended.
type LoggedMessage struct {
	Id          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Direction   string      `json:"direction"`
	MessageType string      `json:"message_type"`
	Payload     interface{} `json:"payload"`
}

// MessageLog keeps the most recent protocol exchanges in a bounded ring.
// Appending beyond capacity evicts the oldest entry.
type MessageLog struct {
	mux      sync.Mutex
	capacity int
	nextId   int
	entries  []LoggedMessage
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		capacity: messageLogCapacity,
		nextId:   1,
		entries:  make([]LoggedMessage, 0, messageLogCapacity),
	}
}

func (l *MessageLog) Append(direction, messageType string, payload interface{}) {
	l.mux.Lock()
	defer l.mux.Unlock()
	entry := LoggedMessage{
		Id:          fmt.Sprintf("msg_%d", l.nextId),
		Timestamp:   time.Now(),
		Direction:   direction,
		MessageType: messageType,
		Payload:     payload,
	}
	l.nextId++
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[1:]
	}
}

// Snapshot returns a copy of the log, oldest entry first. Consumers never
// observe an entry mutate after creation.
func (l *MessageLog) Snapshot() []LoggedMessage {
	l.mux.Lock()
	defer l.mux.Unlock()
	snapshot := make([]LoggedMessage, len(l.entries))
	copy(snapshot, l.entries)
	return snapshot
}

func (l *MessageLog) Size() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return len(l.entries)
}
