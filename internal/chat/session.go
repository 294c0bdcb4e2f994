// Package chat manages one open conversation: its polling loop, optimistic
// sends and the reconciliation between the two.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"refind/internal/api"
	"refind/internal/model"
	"refind/internal/poll"
)

// ErrSendInFlight means a previous Send on this conversation has not
// resolved yet.
var ErrSendInFlight = errors.New("chat: a send is already in flight")

// DefaultPollInterval is the cadence for refreshing an open conversation
// when the caller does not supply one.
const DefaultPollInterval = 3 * time.Second

// reconcileWindow bounds how far apart an optimistic timestamp and its
// server-confirmed counterpart may be and still match.
const reconcileWindow = 2 * time.Minute

// Session 一个打开的会话 / Session is one open conversation. The server's
// message order is authoritative; optimistic messages are rendered after it
// until confirmed, then folded in.
type Session struct {
	key    model.ConversationKey
	selfID int64
	client *api.Client
	log    *slog.Logger

	mu        sync.Mutex
	confirmed []model.Message
	pending   []model.Message
	nextLocal int64
	sending   bool

	syncer *poll.Synchronizer[[]model.Message]
	active func() bool

	// OnMessages receives the merged message list after every change. It
	// must not call back into the Session.
	OnMessages func([]model.Message)
}

// NewSession builds the session. active gates polling to the time the
// conversation is actually on screen; interval falls back to
// DefaultPollInterval when zero.
func NewSession(client *api.Client, key model.ConversationKey, selfID int64, interval time.Duration, active func() bool, log *slog.Logger) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &Session{
		key:       key,
		selfID:    selfID,
		client:    client,
		log:       log.With("item", key.ItemID, "counterpart", key.CounterpartID),
		nextLocal: -1,
		active:    active,
	}
	s.syncer = poll.New(poll.Options[[]model.Message]{
		Name:     "chat",
		Interval: interval,
		Fetch: func(ctx context.Context) ([]model.Message, error) {
			return client.Conversation(ctx, key)
		},
		Equal:    messagesEqual,
		Active:   active,
		OnUpdate: s.adoptServerList,
		Logger:   log,
	})
	return s, nil
}

// Start begins polling. The first fetch fires immediately.
func (s *Session) Start(ctx context.Context) { s.syncer.Start(ctx) }

// Stop halts polling synchronously.
func (s *Session) Stop() { s.syncer.Stop() }

// Key returns the conversation identity.
func (s *Session) Key() model.ConversationKey { return s.key }

// Messages returns the render list: server-ordered confirmed messages
// followed by still-pending optimistic ones.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergedLocked()
}

func (s *Session) mergedLocked() []model.Message {
	out := make([]model.Message, 0, len(s.confirmed)+len(s.pending))
	out = append(out, s.confirmed...)
	out = append(out, s.pending...)
	return out
}

// Send appends an optimistic message and posts it. On success the confirmed
// record replaces the optimistic one and an immediate re-poll is requested.
// On failure the optimistic message is removed again so the caller can
// restore the input and offer a retry.
func (s *Session) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return &api.Error{Kind: api.KindValidation, Message: "message body is empty"}
	}
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.sending = true
	local := model.Message{
		ID:        s.nextLocal,
		Sender:    s.selfID,
		Receiver:  s.key.CounterpartID,
		Item:      s.key.ItemID,
		Body:      body,
		Timestamp: time.Now(),
	}
	s.nextLocal--
	s.pending = append(s.pending, local)
	s.notifyLocked()
	s.mu.Unlock()

	confirmed, err := s.client.SendMessage(ctx, s.key, body)
	s.mu.Lock()
	s.sending = false
	s.removePendingLocked(local.ID)
	if err != nil {
		s.notifyLocked()
		s.mu.Unlock()
		s.log.Debug("send failed", "error", err)
		return err
	}
	if !containsID(s.confirmed, confirmed.ID) {
		s.confirmed = append(s.confirmed, confirmed)
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.syncer.Refresh()
	return nil
}

// adoptServerList installs a freshly polled list, reconciling optimistic
// messages it already contains.
func (s *Session) adoptServerList(msgs []model.Message) {
	s.mu.Lock()
	s.confirmed = msgs
	kept := s.pending[:0]
	for _, p := range s.pending {
		if !confirmedCovers(msgs, p) {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Session) notifyLocked() {
	if s.OnMessages != nil {
		s.OnMessages(s.mergedLocked())
	}
}

func (s *Session) removePendingLocked(localID int64) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.ID != localID {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

// confirmedCovers reports whether the server list already contains the
// optimistic message p, matched by id when known, otherwise by sender, body
// and timestamp proximity.
func confirmedCovers(msgs []model.Message, p model.Message) bool {
	for _, m := range msgs {
		if p.ID > 0 && m.ID == p.ID {
			return true
		}
		if m.Sender == p.Sender && m.Body == p.Body {
			d := m.Timestamp.Sub(p.Timestamp)
			if d < 0 {
				d = -d
			}
			if d <= reconcileWindow {
				return true
			}
		}
	}
	return false
}

func containsID(msgs []model.Message, id int64) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// messagesEqual is the structural comparison the poller uses to suppress
// no-change updates.
func messagesEqual(a, b []model.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Body != b[i].Body || a[i].IsRead != b[i].IsRead ||
			a[i].Sender != b[i].Sender || !a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}
