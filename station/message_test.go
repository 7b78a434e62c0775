package station

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargepoint/ocpp/core"
	"chargepoint/utility"
)

func TestCallMarshal(t *testing.T) {
	call := CreateCall(core.NewHeartbeatRequest(), "req-1")
	data, err := call.MarshalJSON()
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 4)
	assert.Equal(t, float64(CallTypeRequest), fields[0])
	assert.Equal(t, "req-1", fields[1])
	assert.Equal(t, core.HeartbeatFeatureName, fields[2])
}

func TestCallErrorMarshal(t *testing.T) {
	callError := CreateCallError("req-2", "NotSupported", "no such action")
	data, err := callError.MarshalJSON()
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 5)
	assert.Equal(t, float64(CallTypeError), fields[0])
	assert.Equal(t, "NotSupported", fields[2])
}

func TestParseResult(t *testing.T) {
	data := []byte(`[3,"req-3",{"status":"Accepted","interval":30,"currentTime":"2024-01-01T00:00:00Z"}]`)
	fields, err := utility.ParseJson(data)
	require.NoError(t, err)

	callType, err := MessageType(fields)
	require.NoError(t, err)
	require.Equal(t, CallTypeResult, callType)

	result, err := ParseResult(fields)
	require.NoError(t, err)
	assert.Equal(t, "req-3", result.UniqueId)

	var response core.BootNotificationResponse
	require.NoError(t, DecodePayload(result.Payload, &response))
	assert.Equal(t, core.RegistrationStatusAccepted, response.Status)
	assert.Equal(t, 30, response.Interval)
}

func TestParseErrorResult(t *testing.T) {
	data := []byte(`[4,"req-4","InternalError","something broke",{}]`)
	fields, err := utility.ParseJson(data)
	require.NoError(t, err)

	errorResult, err := ParseErrorResult(fields)
	require.NoError(t, err)
	assert.Equal(t, "req-4", errorResult.UniqueId)
	assert.Equal(t, "InternalError", errorResult.ErrorCode)
	assert.Equal(t, "something broke", errorResult.ErrorDescription)
}

func TestParseRequestRemoteStart(t *testing.T) {
	data := []byte(`[2,"req-5","RemoteStartTransaction",{"connectorId":1,"idTag":"USER-42"}]`)
	fields, err := utility.ParseJson(data)
	require.NoError(t, err)

	callRequest, err := ParseRequest(fields)
	require.NoError(t, err)
	assert.Equal(t, "req-5", callRequest.UniqueId)
	assert.Equal(t, core.RemoteStartTransactionFeatureName, callRequest.GetFeatureName())

	request, ok := callRequest.Payload.(*core.RemoteStartTransactionRequest)
	require.True(t, ok)
	require.NotNil(t, request.ConnectorId)
	assert.Equal(t, 1, *request.ConnectorId)
	assert.Equal(t, "USER-42", request.IdTag)
}

func TestParseRequestUnsupportedAction(t *testing.T) {
	data := []byte(`[2,"req-6","Reset",{}]`)
	fields, err := utility.ParseJson(data)
	require.NoError(t, err)

	_, err = ParseRequest(fields)
	assert.Error(t, err)
}

func TestParseJsonRejectsGarbage(t *testing.T) {
	_, err := utility.ParseJson([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
