package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"dreamproxy/internal/core"
	"dreamproxy/internal/middleware/ratelimit"
	proxyerrors "dreamproxy/pkg/errors"
	"dreamproxy/pkg/requestid"
)

// Adapter turns core handlers into net/http handlers
type Adapter struct {
	reqNum atomic.Uint64
	logger *slog.Logger
}

// New creates a new HTTP adapter
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		logger: logger.With("component", "http"),
	}
}

// Requests returns the number of requests dispatched to core handlers
func (a *Adapter) Requests() uint64 {
	return a.reqNum.Load()
}

// Handle serves h over HTTP. The request ID is taken from X-Request-ID when
// the caller sent a usable one and is echoed on the response.
func (a *Adapter) Handle(h core.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.reqNum.Add(1)

		reqID := requestid.FromHeader(r.Header)
		r.Header.Set(requestid.Header, reqID)
		w.Header().Set(requestid.Header, reqID)

		req := newRequest(reqID, r)

		resp, err := h(r.Context(), req)
		if err != nil {
			a.handleError(w, reqID, err)
			return
		}

		a.writeResponse(w, req, resp)
	})
}

func (a *Adapter) writeResponse(w http.ResponseWriter, req core.Request, resp core.Response) {
	for k, values := range resp.Headers() {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode())

	if body := resp.Body(); body != nil {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			// headers are already sent
			a.logger.Error("failed to copy response body",
				"error", err,
				"request_id", req.ID(),
				"path", req.Path())
		}
	}
}

// handleError maps err to its status and writes the error envelope.
// Only the client-safe message of a structured error leaves the process.
func (a *Adapter) handleError(w http.ResponseWriter, reqID string, err error) {
	var proxyErr *proxyerrors.Error
	if !errors.As(err, &proxyErr) {
		a.logger.Error("unstructured handler error", "id", reqID, "error", err)
		WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	if seconds, ok := proxyErr.Details[ratelimit.RetryAfterDetail].(int); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	WriteError(w, proxyErr.HTTPStatusCode(), proxyErr.Message)
}

const msgInternal = "Internal server error"

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

// WriteError writes {"error":{"message":...}} with the given status
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

// WriteJSON writes v as a JSON response
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":{"message":"` + msgInternal + `"}}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
