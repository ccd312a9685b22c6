package convcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// sessionKey joins an instance name and conversation id into the registry's
// map key, matching internal/sessions.MemoryStore's byKey separator-joined
// index approach.
func sessionKey(instance, conversationID string) string {
	return instance + "\x1f" + conversationID
}

// ProviderResolver picks the LLMProvider for a named instance, priority
// explicit-config > Anthropic > OpenAI > Gemini, per §4.1 — the Registry
// never constructs providers itself; that stays the caller's (cmd/server's)
// job, exactly as internal/agent/providers are wired today.
type ProviderResolver func(instance string) (LLMProvider, error)

// ToolSetResolver returns the tool snapshot and executor for a named
// instance's bundle. Connector-provided tools bound to a live Slack client
// are mounted onto the session's HookCoordinator after construction, per
// §4.6, so this only needs to cover the instance's static bundle.
type ToolSetResolver func(instance string) ([]Tool, ToolExecutor)

// conversationSession is one live (instance, conversation_id) execution
// context: its orchestrator, hook coordinator, and bookkeeping needed to
// route injections and cancellation to an in-flight execute() call.
type conversationSession struct {
	instance       string
	conversationID string

	orchestrator *HookCoordinator
	orch         *Orchestrator

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
}

// Registry is the Session Registry: a (instance, conversation_id)-keyed map
// of live sessions, each guarded by a per-key lock so concurrent messages to
// the same conversation serialize instead of racing, per §4.1. Generalizes
// internal/sessions.MemoryStore's map+mutex shape combined with
// internal/sessions.LocalLocker's per-key locking.
type Registry struct {
	logger *slog.Logger

	transcripts *TranscriptStore
	locker      sessions.Locker

	resolveProvider ProviderResolver
	resolveTools    ToolSetResolver
	orchConfig      *OrchestratorConfig
	metrics         *Metrics

	mu       sync.Mutex
	sessions map[string]*conversationSession
}

// NewRegistry builds a Session Registry. lockTimeout configures the
// LocalLocker's default acquisition timeout (internal/sessions.LocalLocker
// wraps a SessionLocker whose zero timeout falls back to
// sessions.DefaultLockTimeout). metrics may be nil, in which case execution
// counters are skipped.
func NewRegistry(logger *slog.Logger, transcripts *TranscriptStore, lockTimeout time.Duration, resolveProvider ProviderResolver, resolveTools ToolSetResolver, orchConfig *OrchestratorConfig, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:          logger.With("component", "convcore.registry"),
		transcripts:     transcripts,
		locker:          sessions.NewLocalLocker(lockTimeout),
		resolveProvider: resolveProvider,
		resolveTools:    resolveTools,
		orchConfig:      orchConfig,
		metrics:         metrics,
		sessions:        make(map[string]*conversationSession),
	}
}

// getOrCreate returns the live session for (instance, conversationID),
// constructing it (and replaying its transcript) on first use. Provider
// selection happens once here, at construction time, per §4.1.
func (r *Registry) getOrCreate(instance, conversationID string) (*conversationSession, error) {
	key := sessionKey(instance, conversationID)

	r.mu.Lock()
	if sess, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	provider, err := r.resolveProvider(instance)
	if err != nil {
		return nil, fmt.Errorf("convcore: resolving provider for %q: %w", instance, err)
	}

	var tools []Tool
	var execTool ToolExecutor
	if r.resolveTools != nil {
		tools, execTool = r.resolveTools(instance)
	}

	coord := NewHookCoordinator(r.logger)

	sess := &conversationSession{instance: instance, conversationID: conversationID, orchestrator: coord}
	sess.orch = NewOrchestrator(provider, tools, execTool, r.hookFirer(coord), r.orchConfig)

	if r.metrics != nil {
		sess.orch.OnForceRespond(func(tool string) {
			r.metrics.ForceResponds.WithLabelValues(instance, tool).Inc()
		})
	}

	coord.MountSingle(CapabilityOrchInject, InjectFunc(sess.orch.Inject))

	r.mu.Lock()
	if existing, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[key] = sess
	r.mu.Unlock()

	return sess, nil
}

// hookFirer adapts a HookCoordinator into the Orchestrator's HookFirer
// function shape.
func (r *Registry) hookFirer(coord *HookCoordinator) HookFirer {
	return func(ctx context.Context, stage string, call models.ToolCall) (bool, error) {
		return coord.FireToolHook(ctx, stage, call)
	}
}

// Hooks returns the live session's hook coordinator, so callers (the Slack
// adapter, roundtable executor) can mount display/approval/tool capabilities
// after construction, per §4.6.
func (r *Registry) Hooks(instance, conversationID string) (*HookCoordinator, error) {
	sess, err := r.getOrCreate(instance, conversationID)
	if err != nil {
		return nil, err
	}
	return sess.orchestrator, nil
}

// Execute runs one turn of a conversation: acquires the session's lock,
// replays its transcript into context on first use, runs the orchestrator,
// appends the resulting turn to the transcript, and releases the lock even
// on panic. This is the Registry's single entry point for driving a
// conversation forward, per §4.1.
func (r *Registry) Execute(ctx context.Context, instance, conversationID, prompt string, progress chan<- ProgressEvent) (string, error) {
	sess, err := r.getOrCreate(instance, conversationID)
	if err != nil {
		return "", err
	}

	if err := r.locker.Lock(ctx, sessionKey(instance, conversationID)); err != nil {
		return "", fmt.Errorf("convcore: acquiring session lock: %w", err)
	}
	defer r.locker.Unlock(sessionKey(instance, conversationID))

	runCtx, cancel := context.WithCancel(ctx)
	sess.mu.Lock()
	sess.active = true
	sess.cancel = cancel
	sess.mu.Unlock()
	if r.metrics != nil {
		r.metrics.ActiveExecutions.WithLabelValues(instance).Inc()
	}
	defer func() {
		sess.mu.Lock()
		sess.active = false
		sess.cancel = nil
		sess.mu.Unlock()
		cancel()
		if r.metrics != nil {
			r.metrics.ActiveExecutions.WithLabelValues(instance).Dec()
		}
	}()

	var history []CompletionMessage
	if r.transcripts != nil {
		history, _ = r.transcripts.ReplayAsMessages(instance, conversationID)
	}

	if r.transcripts != nil {
		_ = r.transcripts.Append(instance, conversationID, TranscriptRecord{Kind: "message", Role: "user", Content: prompt})
	}

	text, execErr := sess.orch.Execute(runCtx, history, prompt, progress)

	if r.transcripts != nil && text != "" {
		_ = r.transcripts.Append(instance, conversationID, TranscriptRecord{Kind: "message", Role: "assistant", Content: text})
	}

	if r.metrics != nil {
		outcome := "ok"
		switch {
		case execErr == ErrMaxIterations:
			outcome = "max_iterations"
		case execErr != nil:
			outcome = "error"
		}
		r.metrics.Executions.WithLabelValues(instance, outcome).Inc()
	}

	return text, execErr
}

// Notify delivers text to a conversation's running execution if one is
// active, per the resolved Open Question that a notify arriving with no
// active execution is dropped (the next explicit message starts a fresh
// turn instead). Returns false if no execution was active to receive it.
func (r *Registry) Notify(instance, conversationID, text string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[sessionKey(instance, conversationID)]
	r.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	active := sess.active
	sess.mu.Unlock()
	if !active {
		return false
	}

	sess.orch.Inject(text)
	if r.metrics != nil {
		r.metrics.Injections.WithLabelValues(instance).Inc()
	}
	return true
}

// Cancel stops the conversation's in-flight execution, if any, per the
// reaction-triggered cancel classification in §4.3.
func (r *Registry) Cancel(instance, conversationID string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[sessionKey(instance, conversationID)]
	r.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	cancel := sess.cancel
	sess.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}
