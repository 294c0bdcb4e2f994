package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"refind/internal/model"
)

type memTokens struct {
	mu      sync.Mutex
	access  string
	refresh string
	cleared bool
}

func (m *memTokens) Tokens() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access, m.refresh
}

func (m *memTokens) SetAccess(a string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = a
	return nil
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh = "", ""
	m.cleared = true
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource, onAuthLost func()) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Tokens: tokens, OnAuthLost: onAuthLost})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRefreshRetryOnce(t *testing.T) {
	tokens := &memTokens{access: "stale", refresh: "r1"}
	var profileCalls, refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&profileCalls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "ada"})
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		var in struct {
			Refresh string `json:"refresh"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		if in.Refresh != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	})
	c := newTestClient(t, mux, tokens, nil)

	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Username != "ada" {
		t.Fatalf("Username=%q, want %q", p.Username, "ada")
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("refresh calls=%d, want 1", got)
	}
	if got := atomic.LoadInt32(&profileCalls); got != 2 {
		t.Fatalf("profile calls=%d, want 2", got)
	}
	if a, _ := tokens.Tokens(); a != "fresh" {
		t.Fatalf("stored access=%q, want %q", a, "fresh")
	}
}

func TestRefreshFailureClearsAndNotifies(t *testing.T) {
	tokens := &memTokens{access: "stale", refresh: "dead"}
	var lost int32
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})
	})
	c := newTestClient(t, mux, tokens, func() { atomic.AddInt32(&lost, 1) })

	_, err := c.Profile(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
	if !tokens.cleared {
		t.Fatal("tokens were not cleared after failed refresh")
	}
	if atomic.LoadInt32(&lost) != 1 {
		t.Fatal("OnAuthLost did not fire exactly once")
	}
}

func TestRefreshNetworkFailureClearsAndNotifies(t *testing.T) {
	tokens := &memTokens{access: "stale", refresh: "r1"}
	var lost int32
	mux := http.NewServeMux()
	mux.HandleFunc("/my-items/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		// Drop the connection so the refresh fails at the transport level.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	})
	c := newTestClient(t, mux, tokens, func() { atomic.AddInt32(&lost, 1) })

	_, err := c.MyItems(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
	if !tokens.cleared {
		t.Fatal("tokens survived a refresh that never completed")
	}
	if atomic.LoadInt32(&lost) != 1 {
		t.Fatal("OnAuthLost did not fire exactly once")
	}
}

func TestSecond401IsTerminal(t *testing.T) {
	tokens := &memTokens{access: "stale", refresh: "r1"}
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		// 401 even with the refreshed token: the retry must not loop.
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	})
	c := newTestClient(t, mux, tokens, nil)

	_, err := c.Profile(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("refresh calls=%d, want exactly 1", got)
	}
}

func TestLoginNeverTriggersRefresh(t *testing.T) {
	tokens := &memTokens{}
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login request carried an Authorization header")
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found"})
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
	})
	c := newTestClient(t, mux, tokens, nil)

	_, err := c.Login(context.Background(), "ada@campus.edu", "nope")
	if KindOf(err) != KindAuth {
		t.Fatalf("kind=%v, want KindAuth", KindOf(err))
	}
	if atomic.LoadInt32(&refreshCalls) != 0 {
		t.Fatal("a failed login must not enter the refresh path")
	}
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	tokens := &memTokens{access: "stale", refresh: "r1"}
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/my-items/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	})
	c := newTestClient(t, mux, tokens, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.MyItems(context.Background())
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("refresh calls=%d, want 1", got)
	}
}

func TestRateLimitMessage(t *testing.T) {
	cases := []struct {
		detail string
		want   string
	}{
		{"Request was throttled. Expected available in 120 seconds.", "Too many attempts. Please try again in 2 minute(s)."},
		{"Expected available in 61 seconds.", "Too many attempts. Please try again in 2 minute(s)."},
		{"Expected available in 30 seconds.", "Too many attempts. Please try again in 1 minute(s)."},
		{"slow down", "Too many attempts. Please try again later."},
		{"", "Too many attempts. Please try again later."},
	}
	for _, tc := range cases {
		if got := rateLimitMessage(tc.detail); got != tc.want {
			t.Fatalf("rateLimitMessage(%q)=%q, want %q", tc.detail, got, tc.want)
		}
	}
}

func TestClassifyValidationDetail(t *testing.T) {
	tokens := &memTokens{access: "a", refresh: "r"}
	mux := http.NewServeMux()
	mux.HandleFunc("/register/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"username": []string{"A user with that username already exists."}})
	})
	c := newTestClient(t, mux, tokens, nil)

	err := c.Register(context.Background(), model.RegisterPayload{Username: "ada", Password: "pw", Email: "a@b.c"})
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("err=%v, want *Error", err)
	}
	if ae.Kind != KindValidation {
		t.Fatalf("kind=%v, want KindValidation", ae.Kind)
	}
	if ae.Message != "username: A user with that username already exists." {
		t.Fatalf("message=%q", ae.Message)
	}
}

func TestNetworkErrorKind(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", Tokens: &memTokens{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.MyItems(context.Background())
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind=%v, want KindNetwork", KindOf(err))
	}
}
