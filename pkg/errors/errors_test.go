package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name       string
		errorType  ErrorType
		message    string
		wantStatus int
	}{
		{"bad request", ErrorTypeBadRequest, "Invalid request body. Expected { input: [...] }", http.StatusBadRequest},
		{"rate limit", ErrorTypeRateLimit, "Too many requests. Try again in 3 minutes.", http.StatusTooManyRequests},
		{"configuration", ErrorTypeConfiguration, "Server not configured. Set OPENAI_API_KEY.", http.StatusInternalServerError},
		{"bad gateway", ErrorTypeBadGateway, "Failed to reach OpenAI. Try again.", http.StatusBadGateway},
		{"unauthorized", ErrorTypeUnauthorized, "missing bearer token", http.StatusUnauthorized},
		{"not found", ErrorTypeNotFound, "no quota record", http.StatusNotFound},
		{"unavailable", ErrorTypeUnavailable, "store unavailable", http.StatusServiceUnavailable},
		{"timeout", ErrorTypeTimeout, "request timeout", http.StatusRequestTimeout},
		{"internal", ErrorTypeInternal, "Internal server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.errorType, tt.message)

			if err.Type != tt.errorType {
				t.Errorf("NewError() type = %v, want %v", err.Type, tt.errorType)
			}
			if err.Message != tt.message {
				t.Errorf("NewError() message = %v, want %v", err.Message, tt.message)
			}
			if err.Details == nil {
				t.Error("NewError() details should be initialized")
			}
			if got := err.HTTPStatusCode(); got != tt.wantStatus {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorWithDetails(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "Too many requests. Try again in 1 minute.").
		WithDetail("key", "203.0.113.7").
		WithDetail("retryAfterMinutes", 1)

	if err.Details["key"] != "203.0.113.7" {
		t.Errorf("WithDetail() key = %v", err.Details["key"])
	}
	if err.Details["retryAfterMinutes"] != 1 {
		t.Errorf("WithDetail() retryAfterMinutes = %v", err.Details["retryAfterMinutes"])
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewError(ErrorTypeBadGateway, "Failed to reach OpenAI. Try again.").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should include cause, got %q", err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return cause")
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(ErrorTypeBadRequest, "Request too large.")
	if err.Error() != "bad_request: Request too large." {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorIs(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "a")
	wrapped := fmt.Errorf("middleware: %w", err)

	if !errors.Is(wrapped, NewError(ErrorTypeRateLimit, "b")) {
		t.Error("errors.Is should match on type")
	}
	if errors.Is(wrapped, NewError(ErrorTypeBadRequest, "a")) {
		t.Error("errors.Is should not match different types")
	}

	var perr *Error
	if !errors.As(wrapped, &perr) || perr.Message != "a" {
		t.Error("errors.As should extract the structured error")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"structured", NewError(ErrorTypeBadGateway, "x"), 502},
		{"wrapped structured", fmt.Errorf("ctx: %w", NewError(ErrorTypeRateLimit, "x")), 429},
		{"configuration", NewError(ErrorTypeConfiguration, "x"), 500},
		{"plain", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("%s: StatusOf() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
