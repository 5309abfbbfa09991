package http

import (
	"context"
	"io"
	"net/http"

	"dreamproxy/internal/core"
)

// request exposes an *http.Request as a core.Request
type request struct {
	id      string
	httpReq *http.Request
}

// newRequest wraps r under the given request ID
func newRequest(id string, r *http.Request) core.Request {
	return &request{id: id, httpReq: r}
}

func (r *request) ID() string { return r.id }

func (r *request) Method() string { return r.httpReq.Method }

func (r *request) Path() string { return r.httpReq.URL.Path }

func (r *request) URL() string { return r.httpReq.URL.String() }

func (r *request) RemoteAddr() string { return r.httpReq.RemoteAddr }

// Headers returns a copy of the request headers
func (r *request) Headers() map[string][]string {
	headers := make(map[string][]string, len(r.httpReq.Header))
	for k, v := range r.httpReq.Header {
		headers[k] = v
	}
	return headers
}

func (r *request) Body() io.ReadCloser {
	if r.httpReq.Body != nil {
		return r.httpReq.Body
	}
	return http.NoBody
}

// Context carries chi's route context, so URL parameters stay reachable
func (r *request) Context() context.Context {
	return r.httpReq.Context()
}
