package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "station",
	Name:      "connected",
	Help:      "Whether the station is connected to the central system.",
}, []string{"station_id"})

var activeTransactionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "station",
	Name:      "transactions_active",
	Help:      "Number of connectors with an active transaction.",
}, []string{"station_id"})

var transactionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "station",
	Name:      "transaction_count",
	Help:      "Total number of started transactions.",
}, []string{"station_id"})

var energyCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "station",
	Name:      "energy_delivered_wh",
	Help:      "Energy delivered across all transactions, Wh.",
}, []string{"station_id"})

var messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "messages_sent",
	Help:      "Total number of requests sent, by action.",
}, []string{"action"})

var messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "messages_received",
	Help:      "Total number of results received, by action.",
}, []string{"action"})

var requestTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "request_timeouts",
	Help:      "Total number of requests that timed out, by action.",
}, []string{"action"})

func ObserveConnected(stationId string, connected bool) {
	if len(stationId) == 0 {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	connectedGauge.With(prometheus.Labels{"station_id": stationId}).Set(value)
}

func ObserveTransactions(stationId string, count int) {
	if len(stationId) == 0 {
		return
	}
	activeTransactionsGauge.With(prometheus.Labels{"station_id": stationId}).Set(float64(count))
}

func CountTransaction(stationId string) {
	if len(stationId) == 0 {
		return
	}
	transactionCounter.With(prometheus.Labels{"station_id": stationId}).Inc()
}

func AddEnergy(stationId string, wh int) {
	if len(stationId) == 0 || wh <= 0 {
		return
	}
	energyCounter.With(prometheus.Labels{"station_id": stationId}).Add(float64(wh))
}

func CountMessageSent(action string) {
	if len(action) == 0 {
		return
	}
	messagesSent.With(prometheus.Labels{"action": action}).Inc()
}

func CountMessageReceived(action string) {
	if len(action) == 0 {
		return
	}
	messagesReceived.With(prometheus.Labels{"action": action}).Inc()
}

func CountRequestTimeout(action string) {
	if len(action) == 0 {
		return
	}
	requestTimeouts.With(prometheus.Labels{"action": action}).Inc()
}
