// approval.go implements the human-in-the-loop approval workflow.
//
// Pending requests live in a capacity-bounded map; when full, the oldest
// pending request is expired to make room. Resolved requests migrate to a
// bounded history ring. Each request carries a deadline enforced by the
// Run sweeper. WaitForApproval blocks on a per-request signal channel;
// exactly one waiter per request is supported. Notification callbacks are
// isolated — a panicking callback is logged and never propagates.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskcore/internal/config"
	"riskcore/pkg/types"
)

const sweepInterval = 10 * time.Second

type pendingRequest struct {
	req    types.ApprovalRequest
	signal chan types.ApprovalStatus // buffered(1); closed never, sent once
}

// ApprovalWorkflow queues orders that need a human decision.
type ApprovalWorkflow struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	history []types.ApprovalRequest

	maxPending  int
	timeout     time.Duration
	historySize int

	onQueued   func(types.ApprovalRequest)
	onResolved func(types.ApprovalRequest)

	logger *slog.Logger
	now    func() time.Time
}

// NewApprovalWorkflow builds the workflow from config.
func NewApprovalWorkflow(cfg config.ApprovalConfig, logger *slog.Logger) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		pending:     make(map[string]*pendingRequest),
		maxPending:  cfg.MaxPending,
		timeout:     cfg.Timeout,
		historySize: cfg.HistorySize,
		logger:      logger.With("component", "approval"),
		now:         time.Now,
	}
}

// OnQueued registers a callback fired when a request enters the queue.
func (w *ApprovalWorkflow) OnQueued(fn func(types.ApprovalRequest)) { w.onQueued = fn }

// OnResolved registers a callback fired on any resolution.
func (w *ApprovalWorkflow) OnResolved(fn func(types.ApprovalRequest)) { w.onResolved = fn }

// Queue registers an order intent for approval and returns the request.
func (w *ApprovalWorkflow) Queue(intent types.OrderIntent, reason string, context types.RiskDecision) types.ApprovalRequest {
	now := w.now()
	req := types.ApprovalRequest{
		ID:        uuid.NewString(),
		Intent:    intent,
		Reason:    reason,
		Context:   context,
		Status:    types.ApprovalPending,
		CreatedAt: now,
		ExpiresAt: now.Add(w.timeout),
	}

	w.mu.Lock()
	if len(w.pending) >= w.maxPending {
		w.expireOldestLocked()
	}
	w.pending[req.ID] = &pendingRequest{
		req:    req,
		signal: make(chan types.ApprovalStatus, 1),
	}
	w.mu.Unlock()

	w.logger.Info("approval queued",
		"id", req.ID, "symbol", intent.Symbol, "reason", reason,
		"expires_at", req.ExpiresAt)
	w.notify(w.onQueued, req)
	return req
}

// expireOldestLocked evicts the oldest pending request. Caller holds mu.
func (w *ApprovalWorkflow) expireOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, p := range w.pending {
		if oldestID == "" || p.req.CreatedAt.Before(oldest) {
			oldestID = id
			oldest = p.req.CreatedAt
		}
	}
	if oldestID != "" {
		w.resolveLocked(oldestID, types.ApprovalExpired, "queue-capacity")
	}
}

// Approve resolves a pending request as APPROVED.
func (w *ApprovalWorkflow) Approve(id, resolvedBy string) error {
	return w.resolve(id, types.ApprovalApproved, resolvedBy)
}

// Reject resolves a pending request as REJECTED.
func (w *ApprovalWorkflow) Reject(id, resolvedBy string) error {
	return w.resolve(id, types.ApprovalRejected, resolvedBy)
}

// Cancel resolves a pending request as CANCELLED.
func (w *ApprovalWorkflow) Cancel(id, resolvedBy string) error {
	return w.resolve(id, types.ApprovalCancelled, resolvedBy)
}

func (w *ApprovalWorkflow) resolve(id string, status types.ApprovalStatus, resolvedBy string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[id]; !ok {
		return fmt.Errorf("approval %s: not pending", id)
	}
	w.resolveLocked(id, status, resolvedBy)
	return nil
}

// resolveLocked finalizes a request: records the resolution, signals the
// waiter, and moves the request to history. Caller holds mu.
func (w *ApprovalWorkflow) resolveLocked(id string, status types.ApprovalStatus, resolvedBy string) {
	p := w.pending[id]
	delete(w.pending, id)

	p.req.Status = status
	p.req.ResolvedAt = w.now()
	p.req.ResolvedBy = resolvedBy

	w.history = append(w.history, p.req)
	if len(w.history) > w.historySize {
		w.history = w.history[len(w.history)-w.historySize:]
	}

	// Single waiter; buffered send never blocks.
	p.signal <- status

	w.logger.Info("approval resolved",
		"id", id, "status", status, "resolved_by", resolvedBy)
	w.notify(w.onResolved, p.req)
}

// WaitForApproval blocks until the request is resolved or timeout elapses.
// On timeout the request is expired so another waiter cannot hang on it.
func (w *ApprovalWorkflow) WaitForApproval(ctx context.Context, id string, timeout time.Duration) (types.ApprovalStatus, error) {
	w.mu.Lock()
	p, ok := w.pending[id]
	w.mu.Unlock()
	if !ok {
		// Already resolved; consult history.
		if req, found := w.fromHistory(id); found {
			return req.Status, nil
		}
		return "", fmt.Errorf("approval %s: unknown request", id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case status := <-p.signal:
		return status, nil
	case <-timer.C:
		w.mu.Lock()
		if _, still := w.pending[id]; still {
			w.resolveLocked(id, types.ApprovalExpired, "timeout")
		}
		w.mu.Unlock()
		return types.ApprovalExpired, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *ApprovalWorkflow) fromHistory(id string) (types.ApprovalRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.history) - 1; i >= 0; i-- {
		if w.history[i].ID == id {
			return w.history[i], true
		}
	}
	return types.ApprovalRequest{}, false
}

// Pending returns a snapshot of pending requests.
func (w *ApprovalWorkflow) Pending() []types.ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.ApprovalRequest, 0, len(w.pending))
	for _, p := range w.pending {
		out = append(out, p.req)
	}
	return out
}

// History returns a snapshot of resolved requests, oldest first.
func (w *ApprovalWorkflow) History() []types.ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.ApprovalRequest, len(w.history))
	copy(out, w.history)
	return out
}

// Run sweeps expired requests until ctx is cancelled.
func (w *ApprovalWorkflow) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep expires every pending request past its deadline.
func (w *ApprovalWorkflow) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for id, p := range w.pending {
		if now.After(p.req.ExpiresAt) {
			w.resolveLocked(id, types.ApprovalExpired, "sweeper")
		}
	}
}

// notify invokes a callback, isolating panics.
func (w *ApprovalWorkflow) notify(fn func(types.ApprovalRequest), req types.ApprovalRequest) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("approval callback panicked", "panic", r)
		}
	}()
	fn(req)
}
