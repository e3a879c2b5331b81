// Package meta wraps the WhatsApp Business Cloud API (graph.facebook.com) for
// WispFlow.
//
// It covers outbound message delivery with retry/backoff on transient failures
// and the thread-control operations used for human handover.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Constants for the Cloud API client.
const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v22.0"
	// DefaultMaxAttempts bounds retries for rate-limited and 5xx responses.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the initial retry delay; it doubles per attempt.
	DefaultBackoff = 500 * time.Millisecond
	// DefaultTimeout bounds every Cloud API request.
	DefaultTimeout = 15 * time.Second
)

// Sender is the outbound contract consumed by the messaging layer.
type Sender interface {
	SendPayload(ctx context.Context, payload map[string]any) error
}

// ThreadControl is the handover transport contract: transfer a conversation to
// the human agent application and take it back. PassThreadControl is safe to
// retry; repeated calls for an already-transferred thread succeed.
type ThreadControl interface {
	PassThreadControl(ctx context.Context, phoneNumber, metadata string) error
	TakeThreadControl(ctx context.Context, phoneNumber, metadata string) error
}

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	AccessToken       string
	PhoneNumberID     string
	BusinessAccountID string
	TargetAppID       string
	BaseURL           string
	APIVersion        string
	MaxAttempts       int
	Backoff           time.Duration
	HTTP              *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithAccessToken sets the bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithBusinessAccountID sets the WhatsApp business account id used for thread control.
func WithBusinessAccountID(id string) Option {
	return func(o *Opts) { o.BusinessAccountID = id }
}

// WithTargetAppID sets the application receiving control on handover.
func WithTargetAppID(id string) Option {
	return func(o *Opts) { o.TargetAppID = id }
}

// WithBaseURL overrides the graph API base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTP = c }
}

// WithRetry overrides the retry policy.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(o *Opts) {
		o.MaxAttempts = maxAttempts
		o.Backoff = backoff
	}
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	opts Opts
	http *http.Client
}

// NewClient creates a Cloud API client. Token and phone number id are required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		APIVersion:  DefaultAPIVersion,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("meta access token not set")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("meta phone number id not set")
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("Meta client created", "api_version", cfg.APIVersion, "thread_control_enabled", cfg.BusinessAccountID != "")
	return &Client{opts: cfg, http: httpClient}, nil
}

// SendPayload posts one message payload to the /messages endpoint. Transient
// failures (429, 5xx) are retried with exponential backoff; anything else
// fails immediately.
func (c *Client) SendPayload(ctx context.Context, payload map[string]any) error {
	path := fmt.Sprintf("/%s/%s/messages", c.opts.APIVersion, c.opts.PhoneNumberID)
	return c.post(ctx, path, payload)
}

// PassThreadControl transfers the conversation to the configured target app.
func (c *Client) PassThreadControl(ctx context.Context, phoneNumber, metadata string) error {
	if c.opts.BusinessAccountID == "" {
		return fmt.Errorf("meta business account id not set, thread control unavailable")
	}
	path := fmt.Sprintf("/%s/%s/pass_thread_control", c.opts.APIVersion, c.opts.BusinessAccountID)
	payload := map[string]any{
		"recipient":     map[string]any{"id": phoneNumber},
		"target_app_id": c.opts.TargetAppID,
		"metadata":      metadata,
	}
	if err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("pass thread control failed: %w", err)
	}
	slog.Info("Meta thread control passed", "phone", phoneNumber)
	return nil
}

// TakeThreadControl reclaims the conversation from the human agent channel.
func (c *Client) TakeThreadControl(ctx context.Context, phoneNumber, metadata string) error {
	if c.opts.BusinessAccountID == "" {
		return fmt.Errorf("meta business account id not set, thread control unavailable")
	}
	path := fmt.Sprintf("/%s/%s/take_thread_control", c.opts.APIVersion, c.opts.BusinessAccountID)
	payload := map[string]any{
		"recipient": map[string]any{"id": phoneNumber},
		"metadata":  metadata,
	}
	if err := c.post(ctx, path, payload); err != nil {
		return fmt.Errorf("take thread control failed: %w", err)
	}
	slog.Info("Meta thread control taken back", "phone", phoneNumber)
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	backoff := c.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("meta request failed: %w", err)
			slog.Warn("Meta request transport error, will retry", "path", path, "attempt", attempt, "error", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			slog.Debug("Meta request succeeded", "path", path, "attempt", attempt)
			return nil
		}
		lastErr = fmt.Errorf("meta API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if !retryable(resp.StatusCode) {
			slog.Error("Meta request failed with non-retryable status", "path", path, "status", resp.StatusCode)
			return lastErr
		}
		slog.Warn("Meta request failed with retryable status", "path", path, "status", resp.StatusCode, "attempt", attempt)
	}
	return fmt.Errorf("meta request exhausted %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

// MockClient implements Sender and ThreadControl for tests, recording calls.
type MockClient struct {
	Payloads    []map[string]any
	PassedTo    []string
	TakenFrom   []string
	SendErr     error
	PassErr     error
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendPayload(ctx context.Context, payload map[string]any) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Payloads = append(m.Payloads, payload)
	return nil
}

func (m *MockClient) PassThreadControl(ctx context.Context, phoneNumber, metadata string) error {
	if m.PassErr != nil {
		return m.PassErr
	}
	m.PassedTo = append(m.PassedTo, phoneNumber)
	return nil
}

func (m *MockClient) TakeThreadControl(ctx context.Context, phoneNumber, metadata string) error {
	m.TakenFrom = append(m.TakenFrom, phoneNumber)
	return nil
}
