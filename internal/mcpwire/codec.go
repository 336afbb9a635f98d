package mcpwire

import (
	"encoding/json"
	"fmt"
)

// NewRequest builds a Request with id and params marshaled from v.
func NewRequest(id json.RawMessage, method string, v any) (Request, error) {
	params, err := marshalParams(v)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}, nil
}

// NewNotification builds a Notification with params marshaled from v.
func NewNotification(method string, v any) (Notification, error) {
	params, err := marshalParams(v)
	if err != nil {
		return Notification{}, err
	}
	return Notification{JSONRPC: "2.0", Method: method, Params: params}, nil
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpwire: marshal params: %w", err)
	}
	return b, nil
}

// ResultOK builds a successful Response.
func ResultOK(id json.RawMessage, v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("mcpwire: marshal result: %w", err)
	}
	return Response{JSONRPC: "2.0", ID: id, Result: b}, nil
}

// ResultErr builds an error Response.
func ResultErr(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// DecodeParams unmarshals a Request's or Notification's raw params into v.
func DecodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("mcpwire: decode params: %w", err)
	}
	return nil
}

// DecodeResult unmarshals a Response's raw result into v.
func DecodeResult(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("mcpwire: decode result: %w", err)
	}
	return nil
}

// CallToolResultJSON builds a single-block error CallToolResult and
// marshals it, for callers (e.g. the proxy multiplexer) that must
// return an MCP error result rather than a transport-level failure when
// dispatch itself cannot reach a tool (spec §4.G: "return an MCP error
// result, not a transport exception").
func CallToolResultJSON(errText string) json.RawMessage {
	b, err := json.Marshal(CallToolResult{
		Content: []ToolContent{{Type: "text", Text: errText}},
		IsError: true,
	})
	if err != nil {
		return json.RawMessage(`{"content":[{"type":"text","text":"internal error"}],"isError":true}`)
	}
	return b
}

// IsNotification reports whether raw looks like a JSON-RPC message with
// no id field — used by transports to distinguish inbound notifications
// (e.g. tools/list_changed) from requests expecting a reply.
func IsNotification(raw []byte) bool {
	var probe struct {
		ID *json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ID == nil
}
