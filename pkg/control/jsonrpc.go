package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

const jsonrpcVersion = "2.0"

// Request is a JSON-RPC 2.0 request. A request without ID is a
// notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements error.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

var nullID = json.RawMessage("null")

// dispatch handles one encoded request against exposer. It returns nil for
// notifications. The method name and status are returned for logging.
func dispatch(exposer Exposer, data []byte) (resp []byte, method string, rerr *RemoteError) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		rerr = &RemoteError{Code: CodeParseError, Message: "parse error: " + err.Error()}
		return encodeResponse(Response{ID: nullID, Error: rerr}), "", rerr
	}
	method = req.Method

	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		rerr = &RemoteError{Code: CodeInvalidRequest, Message: "invalid request"}
		return encodeResponse(Response{ID: id, Error: rerr}), method, rerr
	}

	result, rerr := invoke(exposer, req)
	if len(req.ID) == 0 {
		return nil, method, rerr
	}
	if rerr != nil {
		return encodeResponse(Response{ID: id, Error: rerr}), method, rerr
	}

	raw, err := json.Marshal(result)
	if err != nil {
		rerr = &RemoteError{Code: CodeServerError, Message: "encode result: " + err.Error()}
		return encodeResponse(Response{ID: id, Error: rerr}), method, rerr
	}
	return encodeResponse(Response{ID: id, Result: raw}), method, nil
}

func invoke(exposer Exposer, req Request) (any, *RemoteError) {
	m, ok := exposer.Lookup(req.Method)
	if !ok {
		return nil, &RemoteError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	var params []json.RawMessage
	if p := bytes.TrimSpace(req.Params); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if p[0] != '[' {
			return nil, &RemoteError{Code: CodeInvalidParams, Message: "params must be an array"}
		}
		if err := json.Unmarshal(p, &params); err != nil {
			return nil, &RemoteError{Code: CodeInvalidParams, Message: err.Error()}
		}
	}

	result, err := m(params)
	if err != nil {
		code := CodeServerError
		if errors.Is(err, ErrInvalidParams) {
			code = CodeInvalidParams
		}
		return nil, &RemoteError{Code: code, Message: err.Error()}
	}
	return result, nil
}

func encodeResponse(resp Response) []byte {
	resp.JSONRPC = jsonrpcVersion
	if resp.Result == nil && resp.Error == nil {
		resp.Result = json.RawMessage("null")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		// Only a broken RawMessage can get here.
		data, _ = json.Marshal(Response{
			JSONRPC: jsonrpcVersion,
			ID:      nullID,
			Error:   &RemoteError{Code: CodeServerError, Message: err.Error()},
		})
	}
	return data
}
