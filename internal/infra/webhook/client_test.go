package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crosspost/internal/platform"
)

func testConfig(endpoint string) platform.PlatformConfig {
	return platform.PlatformConfig{
		Name:            "mastodon",
		DisplayName:     "Mastodon",
		Endpoint:        endpoint,
		MaxBodyLength:   500,
		RateCapacity:    10,
		RefillPerSecond: 1.0,
		RequestTimeout:  5 * time.Second,
	}
}

func TestPost_Success(t *testing.T) {
	var received platform.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("expected bearer token, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"ext-42"}`))
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL), AuthToken: "token-1"})

	receipt, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if receipt.ExternalID != "ext-42" {
		t.Errorf("expected external id ext-42, got %q", receipt.ExternalID)
	}
	if received.Body != "hello" {
		t.Errorf("server received body %q, want hello", received.Body)
	}
}

func TestPost_EmptyBodyFallsBackToHeaderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Post-Id", "hdr-7")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL)})

	receipt, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if receipt.ExternalID != "hdr-7" {
		t.Errorf("expected external id hdr-7, got %q", receipt.ExternalID)
	}
}

func TestPost_RateLimitFromJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down","retry_after":2.5}`))
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL)})

	_, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	rateErr, ok := AsRateLimit(err)
	if !ok {
		t.Fatalf("expected *RateLimitError, got %T: %v", err, err)
	}
	if rateErr.RetryAfter != 2500*time.Millisecond {
		t.Errorf("expected retry after 2.5s, got %v", rateErr.RetryAfter)
	}
	if !rateErr.Retryable() {
		t.Error("rate limit errors must be retryable")
	}
}

func TestPost_RateLimitFromHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL)})

	_, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	rateErr, ok := AsRateLimit(err)
	if !ok {
		t.Fatalf("expected *RateLimitError, got %T: %v", err, err)
	}
	if rateErr.RetryAfter != 7*time.Second {
		t.Errorf("expected retry after 7s, got %v", rateErr.RetryAfter)
	}
}

func TestPost_ClientErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"body too long"}`))
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL)})

	_, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *ClientError, got %T: %v", err, err)
	}
	if clientErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", clientErr.StatusCode)
	}
	if clientErr.Retryable() {
		t.Error("client rejections must not be retryable")
	}
	if !IsPermanent(err) {
		t.Error("IsPermanent should detect client rejections")
	}
}

func TestPost_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{Platform: testConfig(server.URL)})

	_, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if !serverErr.Retryable() {
		t.Error("server failures must be retryable")
	}
	if IsPermanent(err) {
		t.Error("server failures are not permanent")
	}
}

func TestPost_ReportsRateHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "3")
		w.Header().Set("X-RateLimit-Reset", "1748779230")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"ext-1"}`))
	}))
	defer server.Close()

	var gotPlatform string
	var gotRemaining int
	var gotReset time.Time
	client := NewClient(Config{
		Platform: testConfig(server.URL),
		OnRateInfo: func(name string, remaining int, reset time.Time) {
			gotPlatform = name
			gotRemaining = remaining
			gotReset = reset
		},
	})

	if _, err := client.Post(context.Background(), platform.Payload{Body: "hello"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if gotPlatform != "mastodon" {
		t.Errorf("callback platform = %q, want mastodon", gotPlatform)
	}
	if gotRemaining != 3 {
		t.Errorf("callback remaining = %d, want 3", gotRemaining)
	}
	if gotReset != time.Unix(1748779230, 0) {
		t.Errorf("callback reset = %v, want unix 1748779230", gotReset)
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{name: "accepted", statusCode: http.StatusOK, wantErr: false},
		{name: "method not allowed still counts as accepted", statusCode: http.StatusMethodNotAllowed, wantErr: false},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantErr: true},
		{name: "forbidden", statusCode: http.StatusForbidden, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(Config{Platform: testConfig(server.URL)})
			err := client.ValidateCredentials(context.Background())
			if tt.wantErr && err == nil {
				t.Error("expected credential rejection")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected acceptance, got %v", err)
			}
		})
	}
}

func TestPost_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(Config{Platform: testConfig(server.URL)})

	_, err := client.Post(context.Background(), platform.Payload{Body: "hello"})
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if IsPermanent(err) {
		t.Error("transport failures are not permanent")
	}
}
