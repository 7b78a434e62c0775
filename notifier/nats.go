package notifier

import (
	"chargepoint/internal"
	"chargepoint/internal/config"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// NatsPublisher ships log messages to a NATS subject so external dashboards
// can follow the station without polling the api.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNatsPublisher(conf *config.Config) (*NatsPublisher, error) {
	if !conf.Nats.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(conf.Nats.Url,
		nats.Name("chargepoint-"+conf.Station.Id),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{
		conn:    conn,
		subject: conf.Nats.Subject,
	}, nil
}

func (p *NatsPublisher) Send(message internal.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject+"."+message.MessageType(), data)
}

func (p *NatsPublisher) Close() {
	p.conn.Close()
}
