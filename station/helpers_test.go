package station

import (
	"sync"
)

type nopLogger struct{}

func (l *nopLogger) FeatureEvent(feature, id, text string) {}
func (l *nopLogger) Debug(text string)                     {}
func (l *nopLogger) Warn(text string)                      {}
func (l *nopLogger) Error(text string, err error)          {}
func (l *nopLogger) RawDataEvent(direction, data string)   {}

// fakeTransport records frames and lets tests inject deliveries.
type fakeTransport struct {
	mux            sync.Mutex
	sent           [][]byte
	failSend       error
	messageHandler func(data []byte)
	errorHandler   func(err error)
}

func (t *fakeTransport) Open(address string) error { return nil }

func (t *fakeTransport) Send(data []byte) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.failSend != nil {
		return t.failSend
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) SetMessageHandler(handler func(data []byte)) {
	t.messageHandler = handler
}

func (t *fakeTransport) SetErrorHandler(handler func(err error)) {
	t.errorHandler = handler
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) sentCount() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.sent)
}
