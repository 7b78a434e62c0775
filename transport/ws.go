package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chargepoint/ocpp"
	"chargepoint/station"
)

const handshakeTimeout = 10 * time.Second

// WebSocket connects the station to a live central system over OCPP-J. One
// connection at a time; the read loop delivers frames and failures on its own
// goroutine, never from inside Send.
type WebSocket struct {
	mux            sync.Mutex
	conn           *websocket.Conn
	done           chan struct{}
	messageHandler func(data []byte)
	errorHandler   func(err error)
}

func NewWebSocket() *WebSocket {
	return &WebSocket{}
}

func (ws *WebSocket) SetMessageHandler(handler func(data []byte)) {
	ws.messageHandler = handler
}

func (ws *WebSocket) SetErrorHandler(handler func(err error)) {
	ws.errorHandler = handler
}

func (ws *WebSocket) Open(address string) error {
	dialer := websocket.Dialer{
		Subprotocols:     []string{ocpp.SubProtocol16},
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.Dial(address, http.Header{})
	if err != nil {
		return err
	}
	done := make(chan struct{})
	ws.mux.Lock()
	ws.conn = conn
	ws.done = done
	ws.mux.Unlock()
	go ws.readLoop(conn, done)
	return nil
}

func (ws *WebSocket) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// closed locally, not a failure
			default:
				if ws.errorHandler != nil {
					ws.errorHandler(err)
				}
			}
			return
		}
		if ws.messageHandler != nil {
			ws.messageHandler(data)
		}
	}
}

func (ws *WebSocket) Send(data []byte) error {
	ws.mux.Lock()
	defer ws.mux.Unlock()
	if ws.conn == nil {
		return station.ErrNotConnected
	}
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocket) Close() error {
	ws.mux.Lock()
	defer ws.mux.Unlock()
	if ws.conn == nil {
		return nil
	}
	close(ws.done)
	_ = ws.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := ws.conn.Close()
	ws.conn = nil
	ws.done = nil
	return err
}
