package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"refind/internal/api"
	"refind/internal/model"
)

// State 登录状态机的取值 / State is one position in the login state machine.
type State int

const (
	// StateUninitialized 启动后尚未检查本地凭据 / before the stored pair
	// has been checked.
	StateUninitialized State = iota
	// StateVerifying 持有凭据，正在向服务端确认 / a stored pair exists and
	// is being confirmed against the server.
	StateVerifying
	// StateAuthenticated 凭据有效，档案已就绪 / the pair is valid and the
	// profile is loaded.
	StateAuthenticated
	// StateAnonymous 无有效凭据 / no usable credentials.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager 驱动登录状态机 / Manager drives the login state machine. The server
// profile, not the login response, is the source of truth for user fields.
type Manager struct {
	client *api.Client
	tokens *TokenStore
	log    *slog.Logger

	mu      sync.RWMutex
	state   State
	profile model.UserProfile

	// OnChange, when set, fires after every state transition with the new
	// state. It runs on the calling goroutine; keep it cheap.
	OnChange func(State)
}

// NewManager wires the state machine.
func NewManager(client *api.Client, tokens *TokenStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		client: client,
		tokens: tokens,
		log:    log,
		state:  StateUninitialized,
	}
}

// State returns the current machine position.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Profile returns the last verified profile. Only meaningful while
// authenticated.
func (m *Manager) Profile() model.UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	cb := m.OnChange
	m.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

// Bootstrap resolves the startup state: no stored pair means anonymous,
// otherwise the pair is verified by fetching the profile. Any verification
// failure, a rejected pair or an unreachable server alike, clears the stored
// pair and lands on anonymous.
func (m *Manager) Bootstrap(ctx context.Context) State {
	if !m.tokens.HasTokens() {
		m.setState(StateAnonymous)
		return StateAnonymous
	}
	m.setState(StateVerifying)

	profile, err := m.client.Profile(ctx)
	if err == nil {
		m.adoptProfile(profile)
		m.setState(StateAuthenticated)
		return StateAuthenticated
	}
	// The client clears the pair itself on a failed refresh; a direct 401
	// without refresh material, or a network failure, will not have.
	_ = m.tokens.Clear()
	m.log.Warn("startup verification failed", "error", err)
	m.setState(StateAnonymous)
	return StateAnonymous
}

// Login performs the full two-step login: token exchange, then a profile
// fetch. If the profile fetch fails the tokens are discarded and the login
// reports failure, so the app never ends up half logged in.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	result, err := m.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := m.tokens.SetPair(result.Access, result.Refresh, result.UserID); err != nil {
		m.log.Warn("persisting login tokens failed", "error", err)
	}
	profile, err := m.client.Profile(ctx)
	if err != nil {
		_ = m.tokens.Clear()
		m.setState(StateAnonymous)
		return fmt.Errorf("login verification failed: %w", err)
	}
	m.adoptProfile(profile)
	m.setState(StateAuthenticated)
	m.log.Info("logged in", "user_id", result.UserID)
	return nil
}

// Signup registers a new account and then runs a clean Login with the same
// credentials. Nothing from the register response is kept.
func (m *Manager) Signup(ctx context.Context, p model.RegisterPayload) error {
	if err := m.client.Register(ctx, p); err != nil {
		return err
	}
	return m.Login(ctx, p.Email, p.Password)
}

// Logout is client-local: it clears the stored pair and profile and moves to
// anonymous. No server call is made.
func (m *Manager) Logout() {
	if err := m.tokens.Clear(); err != nil {
		m.log.Warn("clearing tokens on logout failed", "error", err)
	}
	m.mu.Lock()
	m.profile = model.UserProfile{}
	m.mu.Unlock()
	m.setState(StateAnonymous)
	m.log.Info("logged out")
}

// HandleAuthLost moves the machine to anonymous after the API client reports
// a failed refresh. The tokens are already cleared by then.
func (m *Manager) HandleAuthLost() {
	m.mu.Lock()
	m.profile = model.UserProfile{}
	m.mu.Unlock()
	m.setState(StateAnonymous)
}

// RefreshProfile re-fetches the profile while authenticated, e.g. after an
// edit.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	profile, err := m.client.Profile(ctx)
	if err != nil {
		return err
	}
	m.adoptProfile(profile)
	return nil
}

func (m *Manager) adoptProfile(p model.UserProfile) {
	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()
}
