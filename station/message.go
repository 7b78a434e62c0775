package station

import (
	"chargepoint/ocpp"
	"chargepoint/ocpp/core"
	"chargepoint/ocpp/firmware"
	"chargepoint/utility"
	"encoding/json"
	"fmt"
	"reflect"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

// Call is an OCPP-J Call message, containing an outgoing OCPP Request.
type Call struct {
	TypeId   CallType
	UniqueId string
	Payload  ocpp.Request
}

func (call *Call) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(call.TypeId)
	fields[1] = call.UniqueId
	fields[2] = call.Payload.GetFeatureName()
	fields[3] = call.Payload
	return json.Marshal(fields)
}

func CreateCall(request ocpp.Request, uniqueId string) *Call {
	return &Call{
		TypeId:   CallTypeRequest,
		UniqueId: uniqueId,
		Payload:  request,
	}
}

// CallResult is an OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	TypeId   CallType
	UniqueId string
	Payload  ocpp.Response
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(callResult.TypeId)
	fields[1] = callResult.UniqueId
	fields[2] = callResult.Payload
	return json.Marshal(fields)
}

func CreateCallResult(confirmation ocpp.Response, uniqueId string) *CallResult {
	return &CallResult{
		TypeId:   CallTypeResult,
		UniqueId: uniqueId,
		Payload:  confirmation,
	}
}

// CallError is an OCPP-J CallError message sent when an incoming Call cannot be served.
type CallError struct {
	TypeId           CallType
	UniqueId         string
	ErrorCode        string
	ErrorDescription string
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(callError.TypeId)
	fields[1] = callError.UniqueId
	fields[2] = callError.ErrorCode
	fields[3] = callError.ErrorDescription
	fields[4] = struct{}{}
	return json.Marshal(fields)
}

func CreateCallError(uniqueId, errorCode, description string) *CallError {
	return &CallError{
		TypeId:           CallTypeError,
		UniqueId:         uniqueId,
		ErrorCode:        errorCode,
		ErrorDescription: description,
	}
}

func MessageType(fields []interface{}) (CallType, error) {
	if len(fields) < 3 {
		return 0, utility.Err("incompatible message structure")
	}
	rawTypeId, ok := fields[0].(float64)
	if !ok {
		return 0, utility.Err("invalid message type id")
	}
	typeId := CallType(rawTypeId)
	if typeId < CallTypeRequest || typeId > CallTypeError {
		return 0, utility.Err(fmt.Sprintf("unsupported message type id: %v", typeId))
	}
	return typeId, nil
}

// Result is a parsed incoming CallResult; the payload stays raw until the
// pending request it answers tells us which response type to decode.
type Result struct {
	UniqueId string
	Payload  interface{}
}

func ParseResult(fields []interface{}) (*Result, error) {
	if len(fields) < 3 {
		return nil, utility.Err("unsupported result format; expected length: 3 elements")
	}
	uniqueId, ok := fields[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in result")
	}
	return &Result{UniqueId: uniqueId, Payload: fields[2]}, nil
}

// ErrorResult is a parsed incoming CallError.
type ErrorResult struct {
	UniqueId         string
	ErrorCode        string
	ErrorDescription string
}

func ParseErrorResult(fields []interface{}) (*ErrorResult, error) {
	if len(fields) < 4 {
		return nil, utility.Err("unsupported error format; expected length: 4 elements")
	}
	uniqueId, ok := fields[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in error")
	}
	return &ErrorResult{
		UniqueId:         uniqueId,
		ErrorCode:        fmt.Sprintf("%v", fields[2]),
		ErrorDescription: fmt.Sprintf("%v", fields[3]),
	}, nil
}

// CallRequest is a parsed incoming Call initiated by the central system.
type CallRequest struct {
	TypeId   CallType
	UniqueId string
	feature  string
	Payload  ocpp.Request
}

func (callRequest *CallRequest) GetFeatureName() string {
	return callRequest.feature
}

func ParseRequest(fields []interface{}) (*CallRequest, error) {
	if len(fields) != 4 {
		return nil, utility.Err("unsupported request format; expected length: 4 elements")
	}
	rawTypeId, ok := fields[0].(float64)
	if !ok {
		return nil, utility.Err("invalid message type in request")
	}
	typeId := CallType(rawTypeId)
	if typeId != CallTypeRequest {
		return nil, utility.Err(fmt.Sprintf("invalid request type id: %v", typeId))
	}
	uniqueId, ok := fields[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in request")
	}
	action, ok := fields[2].(string)
	if !ok {
		return nil, utility.Err("invalid action in request")
	}

	requestType, err := getRequestType(action)
	if err != nil {
		return nil, err
	}
	request, err := ParseRawJsonRequest(fields[3], requestType)
	if err != nil {
		return nil, err
	}
	callRequest := CallRequest{
		TypeId:   typeId,
		UniqueId: uniqueId,
		feature:  action,
		Payload:  request,
	}
	return &callRequest, nil
}

func getRequestType(action string) (requestType reflect.Type, err error) {
	switch action {
	case core.RemoteStartTransactionFeatureName:
		requestType = reflect.TypeOf(core.RemoteStartTransactionRequest{})
	case core.RemoteStopTransactionFeatureName:
		requestType = reflect.TypeOf(core.RemoteStopTransactionRequest{})
	case core.ChangeAvailabilityFeatureName:
		requestType = reflect.TypeOf(core.ChangeAvailabilityRequest{})
	case firmware.UpdateFirmwareFeatureName:
		requestType = reflect.TypeOf(firmware.UpdateFirmwareRequest{})
	default:
		return nil, utility.Err(fmt.Sprintf("unsupported action requested: %s", action))
	}
	return requestType, nil
}

func ParseRawJsonRequest(raw interface{}, requestType reflect.Type) (ocpp.Request, error) {
	if raw == nil {
		raw = &struct{}{}
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	request := reflect.New(requestType).Interface()
	err = json.Unmarshal(bytes, &request)
	if err != nil {
		return nil, err
	}
	result := request.(ocpp.Request)
	return result, nil
}

// DecodePayload re-marshals a raw result payload into a typed response struct.
func DecodePayload(raw interface{}, target interface{}) error {
	if raw == nil {
		raw = struct{}{}
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
