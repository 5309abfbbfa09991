package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// maxResponseBytes bounds how much of an upstream body is buffered
const maxResponseBytes = 10 << 20

// ErrInvalidResponse is returned when the upstream body is not JSON
var ErrInvalidResponse = errors.New("upstream returned a non-JSON body")

// Settings are the runtime-swappable parts of the upstream call
type Settings struct {
	APIKey string
	Model  string
}

// Result is a complete upstream response
type Result struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Observer is notified after every upstream call
type Observer func(status int, duration time.Duration, err error)

// Upstream sends model requests to a fixed JSON endpoint with a bearer credential
type Upstream struct {
	client   *http.Client
	url      string
	name     string
	settings atomic.Pointer[Settings]
	observer Observer
}

// NewUpstream creates an upstream client. client must not be nil.
func NewUpstream(client *http.Client, url, name string, settings Settings) *Upstream {
	u := &Upstream{
		client: client,
		url:    url,
		name:   name,
	}
	u.settings.Store(&settings)
	return u
}

// WithObserver sets the call observer
func (u *Upstream) WithObserver(o Observer) *Upstream {
	u.observer = o
	return u
}

// Name is the display name used in client facing messages
func (u *Upstream) Name() string {
	return u.name
}

// Settings returns a snapshot of the current credential and model
func (u *Upstream) Settings() Settings {
	return *u.settings.Load()
}

// Update swaps credential and model for subsequent calls
func (u *Upstream) Update(s Settings) {
	u.settings.Store(&s)
}

type requestBody struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

// Send posts {model, input} using the given settings snapshot. Any status is
// returned as a Result as long as the body is JSON; transport failures and
// non-JSON bodies are errors.
func (u *Upstream) Send(ctx context.Context, s Settings, input json.RawMessage) (*Result, error) {
	start := time.Now()
	res, err := u.send(ctx, s, input)

	if u.observer != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		u.observer(status, time.Since(start), err)
	}
	return res, err
}

func (u *Upstream) send(ctx context.Context, s Settings, input json.RawMessage) (*Result, error) {
	payload, err := json.Marshal(requestBody{Model: s.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("upstream response exceeds %d bytes", maxResponseBytes)
	}

	res := &Result{StatusCode: resp.StatusCode, Body: body}
	if !json.Valid(body) {
		return res, fmt.Errorf("status %d: %w", resp.StatusCode, ErrInvalidResponse)
	}
	return res, nil
}
