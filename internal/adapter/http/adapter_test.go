package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"dreamproxy/internal/core"
	"dreamproxy/internal/middleware/ratelimit"
	proxyerrors "dreamproxy/pkg/errors"
	"dreamproxy/pkg/requestid"

	"github.com/go-chi/chi/v5"
)

func newTestAdapter() *Adapter {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeMessage(t *testing.T, body string) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("body is not an error envelope: %q", body)
	}
	return env.Error.Message
}

func TestAdapterHandle(t *testing.T) {
	tests := []struct {
		name           string
		handler        core.Handler
		expectedStatus int
		expectedBody   string
		expectedHeader map[string]string
	}{
		{
			name: "successful request",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return core.NewJSONResponse(http.StatusOK, []byte(`{"status":"ok"}`)), nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok"}`,
			expectedHeader: map[string]string{"Content-Type": "application/json"},
		},
		{
			name: "upstream status relayed",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return core.NewJSONResponse(http.StatusServiceUnavailable, []byte(`{"error":"overloaded"}`)), nil
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"error":"overloaded"}`,
		},
		{
			name: "bad request",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, proxyerrors.NewError(proxyerrors.ErrorTypeBadRequest, "Invalid request body")
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":{"message":"Invalid request body"}}`,
		},
		{
			name: "rate limited",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, proxyerrors.NewError(proxyerrors.ErrorTypeRateLimit, "Too many requests. Try again in 2 minutes.").
					WithDetail(ratelimit.RetryAfterDetail, 61)
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedBody:   `{"error":{"message":"Too many requests. Try again in 2 minutes."}}`,
			expectedHeader: map[string]string{"Retry-After": "61"},
		},
		{
			name: "configuration error",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, proxyerrors.NewError(proxyerrors.ErrorTypeConfiguration, "Server not configured. Set OPENAI_API_KEY.")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":{"message":"Server not configured. Set OPENAI_API_KEY."}}`,
		},
		{
			name: "cause is not leaked",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, proxyerrors.NewError(proxyerrors.ErrorTypeBadGateway, "Failed to reach OpenAI. Try again.").
					WithCause(errors.New("dial tcp 10.0.0.1:443: connection refused"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"error":{"message":"Failed to reach OpenAI. Try again."}}`,
		},
		{
			name: "unstructured error",
			handler: func(ctx context.Context, req core.Request) (core.Response, error) {
				return nil, errors.New("secret internals")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":{"message":"Internal server error"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter()
			recorder := httptest.NewRecorder()
			adapter.Handle(tt.handler).ServeHTTP(recorder, httptest.NewRequest("POST", "/api/dream", nil))

			if recorder.Code != tt.expectedStatus {
				t.Errorf("Status = %d, want %d", recorder.Code, tt.expectedStatus)
			}
			if body := recorder.Body.String(); body != tt.expectedBody {
				t.Errorf("Body = %q, want %q", body, tt.expectedBody)
			}
			for key, value := range tt.expectedHeader {
				if got := recorder.Header().Get(key); !strings.HasPrefix(got, value) {
					t.Errorf("Header[%s] = %q, want %q", key, got, value)
				}
			}
			if recorder.Header().Get(requestid.Header) == "" {
				t.Error("response should carry a request ID")
			}
		})
	}
}

func TestAdapterRequestConversion(t *testing.T) {
	var capturedReq core.Request
	var capturedBody string
	handler := func(ctx context.Context, req core.Request) (core.Response, error) {
		capturedReq = req
		body, _ := io.ReadAll(req.Body())
		capturedBody = string(body)
		return core.NewResponse(http.StatusOK, nil), nil
	}

	req := httptest.NewRequest("POST", "/api/dream?debug=1", strings.NewReader(`{"input":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.RemoteAddr = "192.168.1.100:12345"

	recorder := httptest.NewRecorder()
	newTestAdapter().Handle(handler).ServeHTTP(recorder, req)

	if capturedReq == nil {
		t.Fatal("Handler was not called")
	}
	if capturedReq.Method() != "POST" {
		t.Errorf("Method = %s, want POST", capturedReq.Method())
	}
	if capturedReq.Path() != "/api/dream" {
		t.Errorf("Path = %s, want /api/dream", capturedReq.Path())
	}
	if capturedReq.URL() != "/api/dream?debug=1" {
		t.Errorf("URL = %s, want /api/dream?debug=1", capturedReq.URL())
	}
	if capturedReq.RemoteAddr() != "192.168.1.100:12345" {
		t.Errorf("RemoteAddr = %s", capturedReq.RemoteAddr())
	}
	if xff := capturedReq.Headers()["X-Forwarded-For"]; len(xff) == 0 || xff[0] != "203.0.113.9" {
		t.Error("X-Forwarded-For not preserved")
	}
	if capturedBody != `{"input":[]}` {
		t.Errorf("Body = %q", capturedBody)
	}

	if capturedReq.ID() == "" || !strings.Contains(capturedReq.ID(), "-") {
		t.Errorf("Request ID format invalid: %s", capturedReq.ID())
	}
	if got := recorder.Header().Get(requestid.Header); got != capturedReq.ID() {
		t.Errorf("echoed request ID %q, handler saw %q", got, capturedReq.ID())
	}
}

func TestAdapterKeepsClientRequestID(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, req core.Request) (core.Response, error) {
		seen = req.ID()
		return core.NewResponse(http.StatusOK, nil), nil
	}

	adapter := newTestAdapter()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestid.Header, "client-abc.123")
	recorder := httptest.NewRecorder()
	adapter.Handle(handler).ServeHTTP(recorder, req)

	if seen != "client-abc.123" || recorder.Header().Get(requestid.Header) != "client-abc.123" {
		t.Errorf("client ID not kept: handler %q, header %q", seen, recorder.Header().Get(requestid.Header))
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestid.Header, "bad id\nwith newline")
	adapter.Handle(handler).ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id\nwith newline" {
		t.Error("invalid client ID should be replaced")
	}

	if adapter.Requests() != 2 {
		t.Errorf("Requests = %d, want 2", adapter.Requests())
	}
}

func TestAdapterContextPropagation(t *testing.T) {
	var capturedCtx context.Context
	handler := func(ctx context.Context, req core.Request) (core.Response, error) {
		capturedCtx = ctx
		return core.NewResponse(http.StatusOK, nil), nil
	}

	req := httptest.NewRequest("GET", "/", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	newTestAdapter().Handle(handler).ServeHTTP(httptest.NewRecorder(), req)

	if capturedCtx == nil {
		t.Fatal("Context was not propagated")
	}
	if _, ok := capturedCtx.Deadline(); !ok {
		t.Error("Context deadline was not propagated")
	}
}

func TestRouter(t *testing.T) {
	adapter := newTestAdapter()
	status := adapter.Handle(func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "Somnium proxy"})
	})
	dream := adapter.Handle(func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.NewJSONResponse(http.StatusOK, []byte(`{"output":[]}`)), nil
	})
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})

	router := NewRouter(Routes{
		Status:      status,
		Dream:       dream,
		Metrics:     metricsHandler,
		MetricsPath: "/internal/metrics",
		Admin: func(r chi.Router) {
			r.Get("/quotas/{key}", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(chi.URLParam(r, "key")))
			})
		},
	})

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"GET", "/", 200, `{"service":"Somnium proxy","status":"ok"}`},
		{"POST", "/api/dream", 200, `{"output":[]}`},
		{"GET", "/internal/metrics", 200, "metrics"},
		{"GET", "/admin/quotas/203.0.113.9", 200, "203.0.113.9"},
		{"GET", "/metrics", 404, `{"error":{"message":"Not found."}}`},
		{"GET", "/api/dream", 405, `{"error":{"message":"Method not allowed."}}`},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(tt.method, tt.path, nil))

			if recorder.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", recorder.Code, tt.wantStatus)
			}
			if body := recorder.Body.String(); body != tt.wantBody {
				t.Errorf("Body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

type stubHealth struct{}

func (stubHealth) Health(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }
func (stubHealth) Ready(w http.ResponseWriter, r *http.Request)  { w.WriteHeader(503) }
func (stubHealth) Live(w http.ResponseWriter, r *http.Request)   { w.WriteHeader(200) }

func TestRouterHealthRoutes(t *testing.T) {
	router := NewRouter(Routes{Health: stubHealth{}})

	for path, want := range map[string]int{"/health": 200, "/ready": 503, "/live": 200} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", path, nil))
		if recorder.Code != want {
			t.Errorf("%s: status %d, want %d", path, recorder.Code, want)
		}
	}
}

func TestWriteError(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, http.StatusTooManyRequests, "Too many requests.")

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if msg := decodeMessage(t, recorder.Body.String()); msg != "Too many requests." {
		t.Errorf("message = %q", msg)
	}
}

func TestServerStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := NewServer(Config{Host: "127.0.0.1", Port: 0}, handler, logger)
	if srv.Addr() != "" {
		t.Error("Addr should be empty before Start")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestServerBindError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewServer(Config{Host: "127.0.0.1", Port: 0}, http.NotFoundHandler(), logger)
	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Stop(context.Background())

	_, port, _ := net.SplitHostPort(first.Addr())
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	second := NewServer(Config{Host: "127.0.0.1", Port: portNum}, http.NotFoundHandler(), logger)
	if err := second.Start(context.Background()); err == nil {
		second.Stop(context.Background())
		t.Fatal("expected bind error on a used port")
	}
}
