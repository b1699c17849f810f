package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) (*ipv4Server, *int32) {
	t.Helper()
	var idx int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		if st >= 200 && st < 300 {
			w.WriteHeader(st)
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		w.WriteHeader(st)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
	return srv, &idx
}

var userHi = []Message{{Role: "user", Content: "hi"}}

func TestGenerateRetriesOn429(t *testing.T) {
	okBody := GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}
	srv, hits := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, okBody)
	defer srv.Close()

	c := NewOpenRouterClientWithBaseURL("test", 2*time.Second, Backoff{Attempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, GenerateRequest{Model: "test-model", Messages: userHi, MaxTokens: 1})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestNoRetryByDefault(t *testing.T) {
	srv, hits := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"3"}}, {}}, GenerateResponse{})
	defer srv.Close()

	c := NewOpenRouterClientWithBaseURL("test", 2*time.Second, Backoff{}, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: userHi})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Fatalf("RetryAfter = %v", rl.RetryAfter)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("expected a single request, got %d", n)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	okBody := GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}
	srv, _ := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, okBody)
	defer srv.Close()

	c := NewOpenRouterClientWithBaseURL("test", 5*time.Second, Backoff{Attempts: 3}, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := c.Generate(ctx, GenerateRequest{Model: "test-model", Messages: userHi, MaxTokens: 1}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected at least ~1s delay due to Retry-After, got %v", elapsed)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewOpenRouterClientWithBaseURL("test", 2*time.Second, Backoff{}, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "test-model", Messages: userHi})
	var br *BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   map[string]any
		check  func(error) bool
	}{
		{401, map[string]any{"error": map[string]any{"message": "invalid key"}}, func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{404, map[string]any{"error": map[string]any{"message": "model not found"}}, func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{402, map[string]any{"error": map[string]any{"message": "insufficient quota"}}, func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
		{503, map[string]any{"error": "overloaded"}, func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		tc := tc
		srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(tc.body)
		}))
		c := NewOpenRouterClientWithBaseURL("k", 2*time.Second, Backoff{}, srv.URL)
		_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: userHi})
		srv.Close()
		if !tc.check(err) {
			t.Errorf("status %d: unexpected error type %T: %v", tc.status, err, err)
		}
	}
}

func TestMissingKeyFailsBeforeNetwork(t *testing.T) {
	c := NewOpenRouterClientWithBaseURL("", time.Second, Backoff{}, "http://127.0.0.1:1")
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: userHi})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestUnreachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewOpenRouterClientWithBaseURL("k", time.Second, Backoff{}, "http://"+addr)
	_, err = c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: userHi})
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
}
