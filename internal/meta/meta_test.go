package meta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []Option{
		WithAccessToken("token"),
		WithPhoneNumberID("12345"),
		WithBaseURL(srv.URL),
		WithRetry(3, time.Millisecond),
	}
	client, err := NewClient(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithPhoneNumberID("12345")); err == nil {
		t.Error("expected error without access token")
	}
	if _, err := NewClient(WithAccessToken("token")); err == nil {
		t.Error("expected error without phone number id")
	}
}

func TestSendPayloadPostsToMessages(t *testing.T) {
	var path, auth string
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SendPayload(context.Background(), map[string]any{
		"messaging_product": "whatsapp",
		"to":                "573001112233",
	})
	if err != nil {
		t.Fatalf("SendPayload failed: %v", err)
	}
	if path != "/v22.0/12345/messages" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer token" {
		t.Errorf("auth = %q", auth)
	}
	if body["to"] != "573001112233" {
		t.Errorf("body = %v", body)
	}
}

func TestSendPayloadRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.SendPayload(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestSendPayloadDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))

	if err := client.SendPayload(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error on 400")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", got)
	}
}

func TestSendPayloadExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if err := client.SendPayload(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPassThreadControl(t *testing.T) {
	var path string
	var body map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}), WithBusinessAccountID("waba-1"), WithTargetAppID("app-7"))

	if err := client.PassThreadControl(context.Background(), "573001112233", "keyword"); err != nil {
		t.Fatalf("PassThreadControl failed: %v", err)
	}
	if path != "/v22.0/waba-1/pass_thread_control" {
		t.Errorf("path = %q", path)
	}
	if body["target_app_id"] != "app-7" || body["metadata"] != "keyword" {
		t.Errorf("body = %v", body)
	}
	recipient := body["recipient"].(map[string]any)
	if recipient["id"] != "573001112233" {
		t.Errorf("recipient = %v", recipient)
	}
}

func TestThreadControlRequiresBusinessAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without a business account id")
	}))

	if err := client.PassThreadControl(context.Background(), "573001112233", ""); err == nil {
		t.Error("expected error without business account id")
	}
	if err := client.TakeThreadControl(context.Background(), "573001112233", ""); err == nil {
		t.Error("expected error without business account id")
	}
}
