// Package handler implements the forwarding endpoint: it validates the
// client's input, relays it to the upstream model API with the server-held
// credential and maps the outcome to a response.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"dreamproxy/internal/backend"
	"dreamproxy/internal/core"
	"dreamproxy/pkg/errors"
)

const (
	msgInvalidBody = "Invalid request body. Expected { input: [...] }"
	msgTooLarge    = "Request too large."
)

// Upstream is the outbound side of the forwarder
type Upstream interface {
	Name() string
	Settings() backend.Settings
	Send(ctx context.Context, s backend.Settings, input json.RawMessage) (*backend.Result, error)
}

// Config configures the forwarder
type Config struct {
	// CredentialName is shown to operators when the credential is missing
	CredentialName string
	// MaxInputChars caps the combined content length of all input messages
	MaxInputChars int
	// MaxBodyBytes caps the raw request body
	MaxBodyBytes int64
}

// Forwarder validates requests and relays them upstream
type Forwarder struct {
	upstream Upstream
	config   Config
	logger   *slog.Logger
}

// NewForwarder creates a forwarder
func NewForwarder(upstream Upstream, cfg Config, logger *slog.Logger) *Forwarder {
	if cfg.CredentialName == "" {
		cfg.CredentialName = "OPENAI_API_KEY"
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 12000
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 50 * 1024
	}
	return &Forwarder{
		upstream: upstream,
		config:   cfg,
		logger:   logger.With("component", "forwarder"),
	}
}

// Handle is the core.Handler for the forwarding route
func (f *Forwarder) Handle(ctx context.Context, req core.Request) (core.Response, error) {
	settings := f.upstream.Settings()
	if settings.APIKey == "" {
		return nil, errors.NewError(errors.ErrorTypeConfiguration,
			fmt.Sprintf("Server not configured. Set %s.", f.config.CredentialName))
	}

	input, err := f.readInput(req.Body())
	if err != nil {
		return nil, err
	}

	n, err := inputLength(input.items)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody).WithCause(err)
	}
	if n > f.config.MaxInputChars {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgTooLarge).
			WithDetail("chars", n).
			WithDetail("max", f.config.MaxInputChars)
	}

	// A client hanging up must not abort a call already issued upstream
	res, err := f.upstream.Send(context.WithoutCancel(ctx), settings, input.raw)
	if err != nil {
		f.logger.Error("upstream request failed",
			"id", req.ID(),
			"upstream", f.upstream.Name(),
			"error", err,
		)
		return nil, errors.NewError(errors.ErrorTypeBadGateway,
			fmt.Sprintf("Failed to reach %s. Try again.", f.upstream.Name())).WithCause(err)
	}

	if !res.OK() {
		f.logger.Warn("upstream returned error status",
			"id", req.ID(),
			"status", res.StatusCode,
		)
		return core.NewJSONResponse(res.StatusCode, res.Body), nil
	}

	return core.NewJSONResponse(200, res.Body), nil
}

type inputPayload struct {
	raw   json.RawMessage
	items []json.RawMessage
}

// readInput reads the body and extracts the input array
func (f *Forwarder) readInput(body io.ReadCloser) (*inputPayload, error) {
	if body == nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody).WithCause(err)
	}
	if int64(len(data)) > f.config.MaxBodyBytes {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgTooLarge).
			WithDetail("bytes", len(data)).
			WithDetail("max", f.config.MaxBodyBytes)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody).WithCause(err)
	}

	raw := bytes.TrimSpace(fields["input"])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, msgInvalidBody).WithCause(err)
	}

	return &inputPayload{raw: raw, items: items}, nil
}
