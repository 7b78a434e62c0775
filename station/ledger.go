package station

import "sync"

const firstTransactionId = 1000

// TransactionLedger allocates transaction identifiers. Ids are strictly
// increasing for the lifetime of the process and never reused.
type TransactionLedger struct {
	mux    sync.Mutex
	nextId int
}

func NewTransactionLedger() *TransactionLedger {
	return &TransactionLedger{nextId: firstTransactionId}
}

func (l *TransactionLedger) NextId() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	id := l.nextId
	l.nextId++
	return id
}
