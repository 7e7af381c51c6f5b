package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultHTTPClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("expected content type header, got %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("X-Echo", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewHTTPClient(5 * time.Second)
	resp, err := c.Do(t.Context(), &HTTPRequest{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"Content-Type": "text/plain"},
		Body:    []byte("ping"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "ping" {
		t.Errorf("expected echoed body, got %q", resp.Body)
	}
	if resp.Headers["X-Echo"] != "1" {
		t.Errorf("expected X-Echo header, got %v", resp.Headers)
	}
}

func TestDefaultHTTPClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	c := NewHTTPClient(5 * time.Second)
	if _, err := c.Do(ctx, &HTTPRequest{Method: http.MethodGet, URL: srv.URL}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
