// Package acptypes defines the wire data model for the Agent Client
// Protocol: the JSON-RPC 2.0 envelope, capability negotiation shapes,
// session/prompt/tool-call payloads, and the content-block tagged union.
package acptypes

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the ACP protocol version this adapter negotiates.
const ProtocolVersion = 1

// JSONRPCMessage is the raw envelope for every line on the wire. A single
// struct covers requests, notifications, and responses; which fields are
// populated distinguishes the three per section 4.1.
type JSONRPCMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

// IsRequest reports whether m carries both a method and an id.
func (m *JSONRPCMessage) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification reports whether m carries a method but no id.
func (m *JSONRPCMessage) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsResponse reports whether m carries an id but no method -- either a
// result or an error for a previously sent outgoing request.
func (m *JSONRPCMessage) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// JSONRPCError is the standard JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request envelope with the given numeric id.
func NewRequest(id int64, method string, params any) (*JSONRPCMessage, error) {
	raw, err := marshalID(id)
	if err != nil {
		return nil, err
	}
	p, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &JSONRPCMessage{JSONRPC: "2.0", ID: raw, Method: method, Params: p}, nil
}

// NewNotification builds a notification envelope (no id).
func NewNotification(method string, params any) (*JSONRPCMessage, error) {
	p, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &JSONRPCMessage{JSONRPC: "2.0", Method: method, Params: p}, nil
}

// NewResponse builds a success response echoing the request's raw id.
func NewResponse(id *json.RawMessage, result any) (*JSONRPCMessage, error) {
	r, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &JSONRPCMessage{JSONRPC: "2.0", ID: id, Result: r}, nil
}

// NewErrorResponse builds an error response echoing the request's raw id.
func NewErrorResponse(id *json.RawMessage, code int, message string, data any) *JSONRPCMessage {
	return &JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}

func marshalID(id int64) (*json.RawMessage, error) {
	b, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(b)
	return &raw, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
