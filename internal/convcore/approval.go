package convcore

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// approvalDeadlineHeap is a min-heap of correlation ids ordered by
// deadline, letting one background goroutine per broker sweep expiries
// instead of one timer per pending request.
type approvalDeadlineHeap []deadlineEntry

type deadlineEntry struct {
	correlationID string
	deadline      time.Time
}

func (h approvalDeadlineHeap) Len() int            { return len(h) }
func (h approvalDeadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h approvalDeadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *approvalDeadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadlineEntry)) }
func (h *approvalDeadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ApprovalBroker generalizes internal/agent.MemoryApprovalStore's map+mutex
// shape to resolve Slack interactive-button approvals, either by
// Resolve(correlationID, option) on a button click, or by deadline expiry
// (a single background goroutine per broker polling a min-heap — see
// DESIGN.md for why a heap was chosen over one timer per request).
type ApprovalBroker struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*PendingApproval
	heap    approvalDeadlineHeap

	wake chan struct{}
	done chan struct{}
}

// NewApprovalBroker creates a broker and starts its background expiry
// sweep goroutine.
func NewApprovalBroker(logger *slog.Logger) *ApprovalBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &ApprovalBroker{
		logger:  logger.With("component", "convcore.approval"),
		pending: make(map[string]*PendingApproval),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.sweepLoop()
	return b
}

// Request registers a new pending approval and returns its correlation id.
// Resolve or deadline expiry eventually closes the returned channel's
// value; callers should use Await to block on the result.
func (b *ApprovalBroker) Request(options []string, def string, timeout time.Duration) *PendingApproval {
	approval := &PendingApproval{
		CorrelationID: uuid.NewString(),
		Options:       options,
		Default:       def,
		Deadline:      time.Now().Add(timeout),
		done:          make(chan string, 1),
	}

	b.mu.Lock()
	b.pending[approval.CorrelationID] = approval
	heap.Push(&b.heap, deadlineEntry{correlationID: approval.CorrelationID, deadline: approval.Deadline})
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}

	return approval
}

// Await blocks until the approval resolves (click or expiry) or the
// context is cancelled.
func (b *ApprovalBroker) Await(ctx context.Context, approval *PendingApproval) (string, error) {
	select {
	case option := <-approval.done:
		return option, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve records a user's button click for a pending approval. Returns
// false if the correlation id is unknown or already resolved.
func (b *ApprovalBroker) Resolve(correlationID, option string) bool {
	b.mu.Lock()
	approval, ok := b.pending[correlationID]
	if ok {
		delete(b.pending, correlationID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case approval.done <- option:
	default:
	}
	return true
}

// sweepLoop resolves approvals whose deadline has passed to their default
// option. It wakes either when a new (possibly sooner) deadline is pushed,
// or when the next deadline in the heap elapses.
func (b *ApprovalBroker) sweepLoop() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		b.mu.Lock()
		var next time.Duration = time.Hour
		for b.heap.Len() > 0 {
			top := b.heap[0]
			if _, stillPending := b.pending[top.correlationID]; !stillPending {
				heap.Pop(&b.heap)
				continue
			}
			next = time.Until(top.deadline)
			break
		}
		b.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if next < 0 {
			next = 0
		}
		timer.Reset(next)

		select {
		case <-b.done:
			return
		case <-b.wake:
			continue
		case <-timer.C:
			b.expireDue()
		}
	}
}

func (b *ApprovalBroker) expireDue() {
	now := time.Now()
	var expired []*PendingApproval

	b.mu.Lock()
	for b.heap.Len() > 0 && !b.heap[0].deadline.After(now) {
		entry := heap.Pop(&b.heap).(deadlineEntry)
		if approval, ok := b.pending[entry.correlationID]; ok {
			delete(b.pending, entry.correlationID)
			expired = append(expired, approval)
		}
	}
	b.mu.Unlock()

	for _, approval := range expired {
		select {
		case approval.done <- approval.Default:
		default:
		}
	}
}

// Close stops the background sweep goroutine.
func (b *ApprovalBroker) Close() {
	close(b.done)
}

// DisplayChannel posts fire-and-forget messages to a conversation, logging
// (never raising) on failure — hooks must not block on Slack, per §4.7.
type DisplayChannel struct {
	logger *slog.Logger
	post   func(ctx context.Context, conversationID, text string) error
}

// NewDisplayChannel builds a display channel that posts through the given
// function (typically the Slack adapter's PostMessage).
func NewDisplayChannel(logger *slog.Logger, post func(ctx context.Context, conversationID, text string) error) *DisplayChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayChannel{logger: logger.With("component", "convcore.display"), post: post}
}

// ShowMessage posts a level-prefixed message ("⚠️ " for warnings, "🚨 " for
// errors, no prefix for info) and logs, but never returns, any post
// failure.
func (d *DisplayChannel) ShowMessage(ctx context.Context, conversationID, text, level, source string) {
	prefixed := text
	switch level {
	case "warning":
		prefixed = "⚠️ " + text
	case "error":
		prefixed = "🚨 " + text
	}
	if err := d.post(ctx, conversationID, prefixed); err != nil {
		d.logger.Warn("display post failed", "error", err, "source", source, "level", level)
	}
}
