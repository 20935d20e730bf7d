package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitReturnsPollingURL(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-key")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          "bfl-123",
			"polling_url": "https://api.bfl.ai/v1/get_result?id=bfl-123",
		})
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, nil)
	url, err := c.Submit(context.Background(), ModelFluxPro11, map[string]any{"prompt": "p", "width": 512})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if url != "https://api.bfl.ai/v1/get_result?id=bfl-123" {
		t.Errorf("polling url: got %q", url)
	}
	if gotPath != "/v1/flux-pro-1.1" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("x-key: got %q", gotKey)
	}
	if gotPayload["prompt"] != "p" {
		t.Errorf("payload: got %v", gotPayload)
	}
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"prompt too long"}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, nil)
	_, err := c.Submit(context.Background(), "", map[string]any{"prompt": "p"})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d", rejected.StatusCode)
	}
	if rejected.Body != `{"detail":"prompt too long"}` {
		t.Errorf("body: got %q", rejected.Body)
	}
}

func TestSubmitMissingPollingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"bfl-123"}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, nil)
	if _, err := c.Submit(context.Background(), "", map[string]any{"prompt": "p"}); err == nil {
		t.Fatal("expected error for missing polling_url")
	}
}

func TestSubmitUnreachable(t *testing.T) {
	c := NewClient("secret", "http://127.0.0.1:1", nil)
	_, err := c.Submit(context.Background(), "", map[string]any{"prompt": "p"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":"Ready","result":{"sample":"https://img/1.png"},"details":null}`))
	}))
	defer srv.Close()

	c := NewClient("secret", "", nil)
	st, err := c.Poll(context.Background(), srv.URL+"/v1/get_result?id=x")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if st.Status != "Ready" {
		t.Errorf("status: got %q", st.Status)
	}
	var result map[string]string
	if err := json.Unmarshal(st.Result, &result); err != nil || result["sample"] != "https://img/1.png" {
		t.Errorf("result: got %s (err %v)", st.Result, err)
	}
	if len(st.Raw) == 0 {
		t.Error("raw payload must be preserved for client diagnostics")
	}
}

func TestPollServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("secret", "", nil)
	_, err := c.Poll(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}
