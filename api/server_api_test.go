package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepoint/internal/config"
	"chargepoint/station"
)

type nopLogger struct{}

func (l *nopLogger) FeatureEvent(feature, id, text string) {}
func (l *nopLogger) Debug(text string)                     {}
func (l *nopLogger) Warn(text string)                      {}
func (l *nopLogger) Error(text string, err error)          {}
func (l *nopLogger) RawDataEvent(direction, data string)   {}

type stubStation struct{}

func (s *stubStation) Connection() station.ConnectionStatus { return station.StatusConnected }

func (s *stubStation) Connectors() []station.ConnectorSnapshot {
	return []station.ConnectorSnapshot{
		{Id: 1, Status: "Available", ErrorCode: "NoError", PowerLimit: 11000, MaxPower: 22000},
		{Id: 2, Status: "Charging", ErrorCode: "NoError", PowerLimit: 11000, MaxPower: 22000,
			Transaction: &station.TransactionSnapshot{Id: 1000, ConnectorId: 2, IdTag: "TAG", MeterStart: 100, CurrentMeter: 180}},
	}
}

func (s *stubStation) Firmware() station.FirmwareSnapshot {
	return station.FirmwareSnapshot{Status: "Idle"}
}

func (s *stubStation) Messages() []station.LoggedMessage {
	return []station.LoggedMessage{{Id: "msg_1", Direction: "sent", MessageType: "BootNotification"}}
}

func newTestApi(t *testing.T) *Api {
	t.Helper()
	conf, err := config.NewConfig()
	require.NoError(t, err)
	return NewServerApi(conf, &nopLogger{}, &stubStation{})
}

func TestApiState(t *testing.T) {
	server := newTestApi(t)

	request := httptest.NewRequest(http.MethodGet, stateEndpoint, nil)
	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var state stateResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &state))
	assert.Equal(t, station.StatusConnected, state.Connection)
	require.Len(t, state.Connectors, 2)
	assert.Equal(t, "Charging", state.Connectors[1].Status)
	require.NotNil(t, state.Connectors[1].Transaction)
	assert.Equal(t, 1000, state.Connectors[1].Transaction.Id)
}

func TestApiMessages(t *testing.T) {
	server := newTestApi(t)

	request := httptest.NewRequest(http.MethodGet, messagesEndpoint, nil)
	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var messages []station.LoggedMessage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "BootNotification", messages[0].MessageType)
}

func TestApiCommand(t *testing.T) {
	server := newTestApi(t)

	var gotConnector int
	var gotFeature, gotPayload string
	server.SetRequestHandler(func(connectorId int, featureName string, payload string) error {
		gotConnector = connectorId
		gotFeature = featureName
		gotPayload = payload
		return nil
	})

	body, _ := json.Marshal(command{ConnectorId: 1, FeatureName: "StartTransaction", Payload: "TAG-1"})
	request := httptest.NewRequest(http.MethodPost, commandEndpoint, bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, gotConnector)
	assert.Equal(t, "StartTransaction", gotFeature)
	assert.Equal(t, "TAG-1", gotPayload)
}

func TestApiCommandBadBody(t *testing.T) {
	server := newTestApi(t)
	server.SetRequestHandler(func(int, string, string) error { return nil })

	request := httptest.NewRequest(http.MethodPost, commandEndpoint, bytes.NewReader([]byte("not json")))
	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
