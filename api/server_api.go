package api

import (
	"chargepoint/internal"
	"chargepoint/internal/config"
	"chargepoint/station"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

const (
	commandEndpoint    = "/api/command"
	stateEndpoint      = "/api/state"
	connectorsEndpoint = "/api/connectors"
	firmwareEndpoint   = "/api/firmware"
	messagesEndpoint   = "/api/messages"
)

// Station is the read/command surface the api exposes over HTTP.
type Station interface {
	Connection() station.ConnectionStatus
	Connectors() []station.ConnectorSnapshot
	Firmware() station.FirmwareSnapshot
	Messages() []station.LoggedMessage
}

type Api struct {
	conf           *config.Config
	httpServer     *http.Server
	station        Station
	requestHandler func(connectorId int, featureName string, payload string) error
	logger         internal.LogHandler
}

type command struct {
	ConnectorId int    `json:"connector_id"`
	FeatureName string `json:"feature_name"`
	Payload     string `json:"payload"`
}

type stateResponse struct {
	StationId  string                      `json:"station_id"`
	Connection station.ConnectionStatus    `json:"connection"`
	Connectors []station.ConnectorSnapshot `json:"connectors"`
	Firmware   station.FirmwareSnapshot    `json:"firmware"`
}

func NewServerApi(conf *config.Config, logger internal.LogHandler, observed Station) *Api {
	server := Api{
		conf:    conf,
		logger:  logger,
		station: observed,
	}
	router := httprouter.New()
	router.POST(commandEndpoint, server.handleCommand)
	router.GET(stateEndpoint, server.handleState)
	router.GET(connectorsEndpoint, server.handleConnectors)
	router.GET(firmwareEndpoint, server.handleFirmware)
	router.GET(messagesEndpoint, server.handleMessages)
	server.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
		Handler: router,
	}
	return &server
}

func (s *Api) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Api) SetRequestHandler(handler func(connectorId int, featureName string, payload string) error) {
	s.requestHandler = handler
}

func (s *Api) handleCommand(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("api: error reading body from %s: %s", r.RemoteAddr, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var cmd command
	if err = json.Unmarshal(body, &cmd); err != nil {
		s.logger.Warn(fmt.Sprintf("api: error parsing command from %s: %s", r.RemoteAddr, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if s.requestHandler == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err = s.requestHandler(cmd.ConnectorId, cmd.FeatureName, cmd.Payload); err != nil {
		s.logger.Warn(fmt.Sprintf("api: error handling command %s: %s", cmd.FeatureName, err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Api) handleState(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJson(w, stateResponse{
		StationId:  s.conf.Station.Id,
		Connection: s.station.Connection(),
		Connectors: s.station.Connectors(),
		Firmware:   s.station.Firmware(),
	})
}

func (s *Api) handleConnectors(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJson(w, s.station.Connectors())
}

func (s *Api) handleFirmware(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJson(w, s.station.Firmware())
}

func (s *Api) handleMessages(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJson(w, s.station.Messages())
}

func (s *Api) writeJson(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("api: encoding response", err)
	}
}
