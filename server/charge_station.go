package server

import (
	"chargepoint/api"
	"chargepoint/internal"
	"chargepoint/internal/config"
	"chargepoint/metrics"
	"chargepoint/notifier"
	"chargepoint/ocpp/core"
	"chargepoint/ocpp/firmware"
	"chargepoint/station"
	"chargepoint/telegram"
	"chargepoint/transport"
	"chargepoint/utility"
	"fmt"
	"log"
)

// ChargeStation assembles the station from its parts: configuration, logger,
// transport, the charge point state machines and the optional side services.
type ChargeStation struct {
	conf        *config.Config
	logger      *internal.Logger
	chargePoint *station.ChargePoint
	api         *api.Api
}

func NewChargeStation() (*ChargeStation, error) {
	conf, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration failed: %w", err)
	}

	logger := internal.NewLogger(conf.Station.Id)
	logger.SetDebugMode(conf.IsDebug)

	mongo, err := internal.NewMongoClient(conf)
	if err != nil {
		logger.Error("mongodb setup failed", err)
	}
	if mongo != nil {
		logger.SetDatabase(mongo)
	}

	nats, err := notifier.NewNatsPublisher(conf)
	if err != nil {
		logger.Error("nats setup failed", err)
	}
	if nats != nil {
		logger.SetMessageService(nats)
	}

	var link station.Transport
	switch conf.Connection.Transport {
	case "ws":
		link = transport.NewWebSocket()
	default:
		link = transport.NewSimulator(conf)
	}

	chargePoint := station.NewChargePoint(conf, link, logger)
	if mongo != nil {
		chargePoint.SetDatabase(mongo)
	}

	if conf.Telegram.Enabled {
		bot, err := telegram.NewBot(conf.Telegram.ApiKey, conf.Telegram.ChatId)
		if err != nil {
			logger.Error("telegram bot setup failed", err)
		} else {
			bot.SetStation(chargePoint)
			bot.Start()
			chargePoint.SetEventHandler(bot)
		}
	}

	cs := &ChargeStation{
		conf:        conf,
		logger:      logger,
		chargePoint: chargePoint,
	}
	if conf.Api.Enabled {
		cs.api = api.NewServerApi(conf, logger, chargePoint)
		cs.api.SetRequestHandler(cs.handleCommand)
	}
	return cs, nil
}

// Start brings the station up and blocks serving the api.
func (cs *ChargeStation) Start() {
	go func() {
		if err := metrics.Listen(cs.conf); err != nil {
			log.Println("metrics server stopped:", err)
		}
	}()

	if cs.conf.Connection.AutoConnect {
		cs.chargePoint.Connect(cs.conf.Connection.Address)
	}

	if cs.api == nil {
		select {}
	}
	if err := cs.api.Start(); err != nil {
		log.Println("api server stopped:", err)
	}
}

// handleCommand maps api commands onto charge point operations. Payload
// meaning depends on the feature: id tag for a transaction start, status name
// for a status override, watts for a power limit, url for a firmware update.
func (cs *ChargeStation) handleCommand(connectorId int, featureName string, payload string) error {
	switch featureName {
	case "Connect":
		address := payload
		if address == "" {
			address = cs.conf.Connection.Address
		}
		cs.chargePoint.Connect(address)
	case "Disconnect":
		cs.chargePoint.Disconnect()
	case core.HeartbeatFeatureName:
		cs.chargePoint.SendHeartbeat()
	case core.StartTransactionFeatureName:
		cs.chargePoint.StartTransaction(connectorId, payload)
	case core.StopTransactionFeatureName:
		cs.chargePoint.StopTransaction(connectorId)
	case core.StatusNotificationFeatureName:
		cs.chargePoint.SetConnectorStatus(connectorId, core.GetStatus(payload), core.NoError)
	case core.MeterValuesFeatureName:
		cs.chargePoint.ReportMeterValues(connectorId)
	case firmware.UpdateFirmwareFeatureName:
		cs.chargePoint.StartFirmwareUpdate(payload)
	case "SetPowerLimit":
		cs.chargePoint.SetPowerLimit(connectorId, utility.ToInt(payload))
	default:
		return fmt.Errorf("feature not supported: %s", featureName)
	}
	return nil
}
