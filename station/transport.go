package station

import "chargepoint/utility"

// Transport is the abstract connection the station speaks through. Delivery of
// incoming data and error signals is asynchronous: implementations must never
// call the handlers from inside Send.
type Transport interface {
	Open(address string) error
	Send(data []byte) error
	SetMessageHandler(handler func(data []byte))
	SetErrorHandler(handler func(err error))
	Close() error
}

var (
	ErrNotConnected   = utility.Err("not connected")
	ErrRequestTimeout = utility.Err("request timed out")
)
