package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"refind/internal/api"
	"refind/internal/model"
	"refind/internal/storage"
)

type fixture struct {
	manager *Manager
	tokens  *TokenStore
	store   *storage.SQLiteStore
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "refind.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tokens := NewTokenStore(st, nil)
	client, err := api.New(api.Options{BaseURL: srv.URL, Tokens: tokens})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return &fixture{
		manager: NewManager(client, tokens, nil),
		tokens:  tokens,
		store:   st,
	}
}

func okProfileHandler(username string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.UserProfile{ID: 1, Username: username})
	})
	return mux
}

func TestBootstrapWithoutTokens(t *testing.T) {
	f := newFixture(t, okProfileHandler("ada"))
	if got := f.manager.Bootstrap(context.Background()); got != StateAnonymous {
		t.Fatalf("Bootstrap=%v, want anonymous", got)
	}
}

func TestBootstrapVerifiesStoredPair(t *testing.T) {
	f := newFixture(t, okProfileHandler("ada"))
	if err := f.tokens.SetPair("a", "r", 1); err != nil {
		t.Fatalf("SetPair: %v", err)
	}

	var transitions []State
	f.manager.OnChange = func(s State) { transitions = append(transitions, s) }

	if got := f.manager.Bootstrap(context.Background()); got != StateAuthenticated {
		t.Fatalf("Bootstrap=%v, want authenticated", got)
	}
	if f.manager.Profile().Username != "ada" {
		t.Fatalf("profile username=%q, want %q", f.manager.Profile().Username, "ada")
	}
	if len(transitions) != 2 || transitions[0] != StateVerifying || transitions[1] != StateAuthenticated {
		t.Fatalf("transitions=%v, want [verifying authenticated]", transitions)
	}
}

func TestBootstrapRejectedPairClearsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f := newFixture(t, mux)
	if err := f.tokens.SetPair("stale", "dead", 1); err != nil {
		t.Fatalf("SetPair: %v", err)
	}

	if got := f.manager.Bootstrap(context.Background()); got != StateAnonymous {
		t.Fatalf("Bootstrap=%v, want anonymous", got)
	}
	if f.tokens.HasTokens() {
		t.Fatal("tokens survived a rejected verification")
	}
}

func TestBootstrapUnreachableServerGoesAnonymous(t *testing.T) {
	f := newFixture(t, okProfileHandler("ada"))
	if err := f.tokens.SetPair("a", "r", 1); err != nil {
		t.Fatalf("SetPair: %v", err)
	}

	// Point the client at a dead address; verification cannot complete.
	client, err := api.New(api.Options{BaseURL: "http://127.0.0.1:1", Tokens: f.tokens})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	m := NewManager(client, f.tokens, nil)
	if got := m.Bootstrap(context.Background()); got != StateAnonymous {
		t.Fatalf("Bootstrap=%v, want anonymous", got)
	}
	if f.tokens.HasTokens() {
		t.Fatal("tokens survived a failed startup verification")
	}
	if creds, err := f.store.LoadCredentials(); err == nil {
		t.Fatalf("persisted creds=%+v, want the row gone", creds)
	}
}

func TestLoginTwoStep(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		if in.Email != "ada@campus.edu" {
			t.Errorf("login email=%q", in.Email)
		}
		json.NewEncoder(w).Encode(model.LoginResult{Access: "a1", Refresh: "r1", UserID: 42})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(model.UserProfile{ID: 42, Username: "ada", Name: "Ada L"})
	})
	f := newFixture(t, mux)

	if err := f.manager.Login(context.Background(), "ada@campus.edu", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if f.manager.State() != StateAuthenticated {
		t.Fatalf("state=%v, want authenticated", f.manager.State())
	}
	// Display fields come from the profile, never from the login response.
	if f.manager.Profile().Name != "Ada L" {
		t.Fatalf("profile name=%q, want %q", f.manager.Profile().Name, "Ada L")
	}
	creds, err := f.store.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.Access != "a1" || creds.Refresh != "r1" || creds.UserID != 42 {
		t.Fatalf("persisted creds=%+v", creds)
	}
}

func TestLoginProfileFailureDiscardsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.LoginResult{Access: "a1", Refresh: "r1", UserID: 42})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f := newFixture(t, mux)

	if err := f.manager.Login(context.Background(), "ada@campus.edu", "pw"); err == nil {
		t.Fatal("Login succeeded despite profile failure")
	}
	if f.manager.State() != StateAnonymous {
		t.Fatalf("state=%v, want anonymous", f.manager.State())
	}
	if f.tokens.HasTokens() {
		t.Fatal("tokens survived a half-failed login")
	}
}

func TestSignupRunsCleanLogin(t *testing.T) {
	var registered, loggedIn atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/register/", func(w http.ResponseWriter, r *http.Request) {
		registered.Add(1)
		// The register response deliberately returns garbage tokens;
		// none of it may be kept.
		json.NewEncoder(w).Encode(map[string]string{"access": "bogus", "refresh": "bogus"})
	})
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		loggedIn.Add(1)
		json.NewEncoder(w).Encode(model.LoginResult{Access: "real", Refresh: "real-r", UserID: 7})
	})
	mux.HandleFunc("/profile/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.UserProfile{ID: 7, Username: "newbie"})
	})
	f := newFixture(t, mux)

	err := f.manager.Signup(context.Background(), model.RegisterPayload{Username: "newbie", Email: "new@campus.edu", Password: "pw"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if registered.Load() != 1 || loggedIn.Load() != 1 {
		t.Fatalf("register=%d login=%d, want 1 and 1", registered.Load(), loggedIn.Load())
	}
	access, _ := f.tokens.Tokens()
	if access != "real" {
		t.Fatalf("access=%q, want the login token, not the register one", access)
	}
}

func TestLogoutIsClientLocal(t *testing.T) {
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(model.UserProfile{ID: 1})
	})
	f := newFixture(t, mux)
	if err := f.tokens.SetPair("a", "r", 1); err != nil {
		t.Fatalf("SetPair: %v", err)
	}

	before := requests.Load()
	f.manager.Logout()
	if requests.Load() != before {
		t.Fatal("logout must not hit the server")
	}
	if f.manager.State() != StateAnonymous {
		t.Fatalf("state=%v, want anonymous", f.manager.State())
	}
	if f.tokens.HasTokens() {
		t.Fatal("tokens survived logout")
	}
}

func TestTokenStoreResumesFromDisk(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.NewSQLiteStore(filepath.Join(dir, "refind.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	first := NewTokenStore(st, nil)
	if err := first.SetPair("a", "r", 3); err != nil {
		t.Fatalf("SetPair: %v", err)
	}
	_ = st.Close()

	st2, err := storage.NewSQLiteStore(filepath.Join(dir, "refind.db"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	second := NewTokenStore(st2, nil)
	access, refresh := second.Tokens()
	if access != "a" || refresh != "r" || second.UserID() != 3 {
		t.Fatalf("resumed pair=(%q,%q,%d), want (a,r,3)", access, refresh, second.UserID())
	}
}
