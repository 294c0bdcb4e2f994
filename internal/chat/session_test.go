package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"refind/internal/api"
	"refind/internal/model"
)

type memTokens struct{}

func (memTokens) Tokens() (string, string) { return "a", "r" }
func (memTokens) SetAccess(string) error   { return nil }
func (memTokens) Clear() error             { return nil }

// chatServer is a minimal message endpoint with controllable state.
type chatServer struct {
	mu       sync.Mutex
	messages []model.Message
	nextID   int64
	failSend bool
}

func (cs *chatServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		json.NewEncoder(w).Encode(cs.messages)
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		if cs.failSend {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var in struct {
			Receiver int64  `json:"receiver"`
			Item     int64  `json:"item"`
			Message  string `json:"message"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		cs.nextID++
		m := model.Message{
			ID: cs.nextID, Sender: 1, Receiver: in.Receiver,
			Item: in.Item, Body: in.Message, Timestamp: time.Now().UTC(),
		}
		cs.messages = append(cs.messages, m)
		json.NewEncoder(w).Encode(m)
	})
	return mux
}

func newTestSession(t *testing.T, cs *chatServer) *Session {
	t.Helper()
	srv := httptest.NewServer(cs.handler())
	t.Cleanup(srv.Close)
	client, err := api.New(api.Options{BaseURL: srv.URL, Tokens: memTokens{}})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	key := model.ConversationKey{ItemID: 5, CounterpartID: 2}
	s, err := NewSession(client, key, 1, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestNewSessionIntervalDefaultAndOverride(t *testing.T) {
	client, err := api.New(api.Options{BaseURL: "http://127.0.0.1:1", Tokens: memTokens{}})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	key := model.ConversationKey{ItemID: 5, CounterpartID: 2}

	s, err := NewSession(client, key, 1, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if got := s.syncer.Interval(); got != DefaultPollInterval {
		t.Fatalf("interval=%v, want the %v default", got, DefaultPollInterval)
	}

	s, err = NewSession(client, key, 1, 500*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if got := s.syncer.Interval(); got != 500*time.Millisecond {
		t.Fatalf("interval=%v, want the configured 500ms", got)
	}
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	var mu sync.Mutex
	var snapshots [][]model.Message
	s.OnMessages = func(msgs []model.Message) {
		mu.Lock()
		snapshots = append(snapshots, msgs)
		mu.Unlock()
	}

	if err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) < 2 {
		t.Fatalf("snapshots=%d, want at least 2 (optimistic then confirmed)", len(snapshots))
	}
	first := snapshots[0]
	if len(first) != 1 || first[0].ID >= 0 {
		t.Fatalf("first snapshot=%+v, want one optimistic message with a local id", first)
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 1 || last[0].ID != 1 {
		t.Fatalf("final snapshot=%+v, want the single confirmed message", last)
	}
}

func TestSendFailureRemovesOptimistic(t *testing.T) {
	cs := &chatServer{failSend: true}
	s := newTestSession(t, cs)

	if err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send succeeded against a failing server")
	}
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("messages=%v, want empty after failed send", got)
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	err := s.Send(context.Background(), "   ")
	if api.KindOf(err) != api.KindValidation {
		t.Fatalf("kind=%v, want KindValidation", api.KindOf(err))
	}
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("messages=%v, want none for a rejected send", got)
	}
}

func TestSendRejectsOverlappingSend(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	s.mu.Lock()
	s.sending = true
	s.mu.Unlock()

	if err := s.Send(context.Background(), "hello"); err != ErrSendInFlight {
		t.Fatalf("err=%v, want ErrSendInFlight", err)
	}
}

func TestPollReconcilesPendingByContent(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	// Simulate a poll landing while a send is still pending: the server
	// list already contains the message, matched by sender and body.
	now := time.Now()
	s.mu.Lock()
	s.pending = append(s.pending, model.Message{ID: -1, Sender: 1, Body: "hi", Timestamp: now})
	s.mu.Unlock()

	s.adoptServerList([]model.Message{
		{ID: 10, Sender: 1, Receiver: 2, Item: 5, Body: "hi", Timestamp: now.Add(3 * time.Second)},
	})

	got := s.Messages()
	if len(got) != 1 {
		t.Fatalf("messages=%v, want the confirmed copy only", got)
	}
	if got[0].ID != 10 {
		t.Fatalf("id=%d, want the server id 10", got[0].ID)
	}
}

func TestPollKeepsUnrelatedPending(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	now := time.Now()
	s.mu.Lock()
	s.pending = append(s.pending, model.Message{ID: -1, Sender: 1, Body: "still sending", Timestamp: now})
	s.mu.Unlock()

	s.adoptServerList([]model.Message{
		{ID: 10, Sender: 2, Body: "from the other side", Timestamp: now},
	})

	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("messages=%d entries, want confirmed plus pending", len(got))
	}
	if got[0].ID != 10 || got[1].ID != -1 {
		t.Fatalf("order=%v, want server message first, pending last", got)
	}
}

func TestServerOrderIsAuthoritative(t *testing.T) {
	cs := &chatServer{}
	s := newTestSession(t, cs)

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	// The server may interleave messages received out of client order.
	list := []model.Message{
		{ID: 1, Sender: 2, Body: "first", Timestamp: base},
		{ID: 3, Sender: 1, Body: "second", Timestamp: base.Add(time.Second)},
		{ID: 2, Sender: 2, Body: "third", Timestamp: base.Add(2 * time.Second)},
	}
	s.adoptServerList(list)

	got := s.Messages()
	for i := range list {
		if got[i].ID != list[i].ID {
			t.Fatalf("position %d has id %d, want server order %d", i, got[i].ID, list[i].ID)
		}
	}
}

func TestMessagesEqual(t *testing.T) {
	ts := time.Now()
	a := []model.Message{{ID: 1, Body: "x", Timestamp: ts}}
	b := []model.Message{{ID: 1, Body: "x", Timestamp: ts}}
	if !messagesEqual(a, b) {
		t.Fatal("identical lists reported unequal")
	}
	b[0].IsRead = true
	if messagesEqual(a, b) {
		t.Fatal("read-state change went undetected")
	}
	if messagesEqual(a, nil) {
		t.Fatal("length change went undetected")
	}
}
