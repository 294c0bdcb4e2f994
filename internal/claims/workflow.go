// Package claims drives the claim lifecycle on items: submitting a claim,
// the owner-side approval and owner-side status updates.
package claims

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"refind/internal/api"
	"refind/internal/model"
)

// ErrBusy means a claim action for the same item is still in flight.
var ErrBusy = errors.New("claims: action already in progress for this item")

// Workflow 物品认领流程 / Workflow serializes claim actions per item. Item
// status is never mutated locally: after every action the item is re-fetched
// and the server's state is what callers see.
type Workflow struct {
	client *api.Client
	log    *slog.Logger

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New builds a Workflow.
func New(client *api.Client, log *slog.Logger) *Workflow {
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{
		client:   client,
		log:      log,
		inFlight: make(map[int64]bool),
	}
}

// begin marks itemID busy, failing if an action is already running for it.
func (w *Workflow) begin(itemID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[itemID] {
		return ErrBusy
	}
	w.inFlight[itemID] = true
	return nil
}

func (w *Workflow) end(itemID int64) {
	w.mu.Lock()
	delete(w.inFlight, itemID)
	w.mu.Unlock()
}

// InFlight reports whether an action is running for itemID, for disabling
// buttons.
func (w *Workflow) InFlight(itemID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight[itemID]
}

// Claim submits a claim with a note and returns the item as the server now
// sees it.
func (w *Workflow) Claim(ctx context.Context, itemID int64, note string) (model.Item, error) {
	return w.run(ctx, itemID, func(ctx context.Context) error {
		return w.client.Claim(ctx, itemID, note)
	})
}

// Approve approves the pending claim on an owned item.
func (w *Workflow) Approve(ctx context.Context, itemID int64) (model.Item, error) {
	return w.run(ctx, itemID, func(ctx context.Context) error {
		return w.client.ApproveClaim(ctx, itemID)
	})
}

// UpdateStatus moves an owned item to a new lifecycle status, for example
// marking it found after recovery.
func (w *Workflow) UpdateStatus(ctx context.Context, itemID int64, status string) (model.Item, error) {
	return w.run(ctx, itemID, func(ctx context.Context) error {
		return w.client.UpdateStatus(ctx, itemID, status)
	})
}

func (w *Workflow) run(ctx context.Context, itemID int64, action func(context.Context) error) (model.Item, error) {
	if err := w.begin(itemID); err != nil {
		return model.Item{}, err
	}
	defer w.end(itemID)

	if err := action(ctx); err != nil {
		return model.Item{}, err
	}
	item, err := w.client.Item(ctx, itemID)
	if err != nil {
		// The action itself succeeded; report the refetch problem but
		// let the caller know a re-list will show the new state.
		w.log.Warn("refetch after claim action failed", "item", itemID, "error", err)
		return model.Item{}, err
	}
	return item, nil
}
