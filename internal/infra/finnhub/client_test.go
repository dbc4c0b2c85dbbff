package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_QuoteParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "AAPL" {
			t.Errorf("unexpected symbol %s", r.URL.Query().Get("symbol"))
		}
		if r.URL.Query().Get("token") != "test-key" {
			t.Errorf("token not propagated")
		}
		w.Write([]byte(`{"c":150.25,"o":149.0,"h":151.5,"l":148.75,"pc":149.5,"d":0.75,"dp":0.5}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)

	quote, err := client.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Current != 150.25 {
		t.Errorf("current = %v, want 150.25", quote.Current)
	}
	if quote.PreviousClose != 149.5 {
		t.Errorf("previous close = %v, want 149.5", quote.PreviousClose)
	}
}

func TestClient_MarketStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("exchange") != "US" {
			t.Errorf("unexpected exchange %s", r.URL.Query().Get("exchange"))
		}
		w.Write([]byte(`{"exchange":"US","isOpen":true,"session":"regular"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", 5*time.Second)

	status, err := client.MarketStatus(context.Background(), "US")
	if err != nil {
		t.Fatalf("MarketStatus failed: %v", err)
	}
	if !status.IsOpen {
		t.Error("expected market open")
	}
}

func TestClient_NonOKStatusBecomesAPIError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewClient(server.URL, "k", 5*time.Second)
		_, err := client.Quote(context.Background(), "AAPL")
		server.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected APIError, got %v", tt.status, err)
		}
		if apiErr.StatusCode != tt.status {
			t.Errorf("status code = %d, want %d", apiErr.StatusCode, tt.status)
		}
		if IsTransient(err) != tt.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, IsTransient(err), tt.transient)
		}
	}
}

func TestClient_MalformedPayloadNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c": not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", 5*time.Second)
	_, err := client.Quote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error on malformed payload")
	}
	if IsTransient(err) {
		t.Error("malformed payloads must not be retried")
	}
}

func TestClient_ContextCancellationPropagates(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(server.URL, "k", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Quote(ctx, "AAPL")
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if IsTransient(err) {
		t.Error("caller cancellation must not be classified transient")
	}
}
