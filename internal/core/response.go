package core

import (
	"bytes"
	"encoding/json"
	"io"
)

// response is a simple Response implementation
type response struct {
	statusCode int
	headers    map[string][]string
	body       []byte
}

// NewResponse creates a response with a fixed body
func NewResponse(statusCode int, body []byte) Response {
	return &response{
		statusCode: statusCode,
		headers:    make(map[string][]string),
		body:       body,
	}
}

// NewJSONResponse creates a response with an application/json body
func NewJSONResponse(statusCode int, body []byte) Response {
	return &response{
		statusCode: statusCode,
		headers:    map[string][]string{"Content-Type": {"application/json; charset=utf-8"}},
		body:       body,
	}
}

// JSON marshals v into an application/json response
func JSON(statusCode int, v any) (Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return NewJSONResponse(statusCode, body), nil
}

func (r *response) StatusCode() int              { return r.statusCode }
func (r *response) Headers() map[string][]string { return r.headers }
func (r *response) Body() io.ReadCloser          { return io.NopCloser(bytes.NewReader(r.body)) }
