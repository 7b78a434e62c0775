package internal

import "time"

// TransactionRecord is the finished-session document shipped to the optional
// database sink. The station itself keeps no history across restarts.
type TransactionRecord struct {
	Id          int       `json:"transaction_id" bson:"transaction_id"`
	ConnectorId int       `json:"connector_id" bson:"connector_id"`
	StationId   string    `json:"station_id" bson:"station_id"`
	IdTag       string    `json:"id_tag" bson:"id_tag"`
	MeterStart  int       `json:"meter_start" bson:"meter_start"`
	MeterStop   int       `json:"meter_stop" bson:"meter_stop"`
	TimeStart   time.Time `json:"time_start" bson:"time_start"`
	TimeStop    time.Time `json:"time_stop" bson:"time_stop"`
	Reason      string    `json:"reason" bson:"reason"`
}

type Database interface {
	WriteLogMessage(message *FeatureLogMessage) error
	AddTransaction(transaction *TransactionRecord) error
}
