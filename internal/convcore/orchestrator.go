package convcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Sentinel errors for orchestrator failures, in the style of
// internal/agent/errors.go.
var (
	ErrMaxIterations = errors.New("convcore: max iterations exceeded")
	ErrNoProvider    = errors.New("convcore: no provider configured")
)

// InjectionQueue is an unbounded FIFO of user-supplied strings an
// orchestrator drains at three points during execute(). Any goroutine may
// call Push while execute is running. Generalizes
// internal/agent.SteeringQueue's one-drain-point, two-mode design into a
// plain always-drain-all queue used at three call sites instead.
type InjectionQueue struct {
	mu      sync.Mutex
	pending []string
}

// NewInjectionQueue creates an empty queue.
func NewInjectionQueue() *InjectionQueue {
	return &InjectionQueue{}
}

// Push enqueues text for delivery at the next drain point.
func (q *InjectionQueue) Push(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, text)
}

// Drain removes and returns all pending strings, joined per §4.2.2's
// literal format. Returns ("", 0) if nothing is queued.
func (q *InjectionQueue) Drain() (string, int) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return "", 0
	}

	var b strings.Builder
	b.WriteString("[The user sent additional messages while you were working. Incorporate this into your current task:]")
	for _, msg := range pending {
		b.WriteString("\n- ")
		b.WriteString(msg)
	}
	return b.String(), len(pending)
}

// HasPending reports whether any injection is queued, used by the Progress
// Pipeline to append "· N message(s) queued".
func (q *InjectionQueue) HasPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// OrchestratorConfig configures iteration limits and force-respond tools,
// mirroring internal/agent.LoopConfig's shape.
type OrchestratorConfig struct {
	// MaxIterations limits the number of tool-use iterations. Default: 10.
	MaxIterations int

	// MaxTokens is the default max tokens for LLM responses. Default: 4096.
	MaxTokens int

	// ForceRespondTools names tools that, once they complete, force the
	// next iteration's provider call to omit tools entirely. Default:
	// {"dispatch_worker"}.
	ForceRespondTools map[string]struct{}

	// Model selects the LLM model to request; empty uses the provider's
	// default.
	Model string

	// System is the system prompt.
	System string
}

// DefaultOrchestratorConfig returns the spec's default configuration.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxIterations:     10,
		MaxTokens:         4096,
		ForceRespondTools: map[string]struct{}{"dispatch_worker": {}},
	}
}

func sanitizeOrchestratorConfig(cfg *OrchestratorConfig) *OrchestratorConfig {
	if cfg == nil {
		return DefaultOrchestratorConfig()
	}
	out := *cfg
	if out.MaxIterations <= 0 {
		out.MaxIterations = 10
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	if out.ForceRespondTools == nil {
		out.ForceRespondTools = map[string]struct{}{"dispatch_worker": {}}
	}
	return &out
}

// OrchestratorPhase mirrors internal/agent.LoopPhase's state-machine shape.
type OrchestratorPhase string

const (
	PhaseInit         OrchestratorPhase = "init"
	PhaseStream       OrchestratorPhase = "stream"
	PhaseExecuteTools OrchestratorPhase = "execute_tools"
	PhaseContinue     OrchestratorPhase = "continue"
	PhaseComplete     OrchestratorPhase = "complete"
)

// ToolExecutor executes a named tool call. The Orchestrator does not know
// about tool registries directly; it is handed a lookup closure by the
// session that owns it (see Registry.buildOrchestrator), matching the
// Hook Coordinator's late-bound "named capability" resolution in §9.
type ToolExecutor func(ctx context.Context, call models.ToolCall) (*models.ToolResult, error)

// HookFirer runs the tool:pre / tool:post hooks around a tool call. A
// pre-hook denial is signalled by returning deny=true; the tool is then
// never executed and a synthetic error result is produced instead, per
// §4.2.4's hook-denial failure semantics.
type HookFirer func(ctx context.Context, stage string, call models.ToolCall) (deny bool, err error)

// Orchestrator drives one agent execution: Init -> Stream -> Execute Tools
// -> Continue/Complete, generalizing internal/agent.AgenticLoop with three
// injection-drain points (instead of one) and a force-respond one-shot flag
// the teacher's loop has no equivalent of.
type Orchestrator struct {
	provider LLMProvider
	tools    []Tool
	execTool ToolExecutor
	fireHook HookFirer
	config   *OrchestratorConfig

	injections *InjectionQueue

	// onForceRespond, if set, is called whenever a configured force-respond
	// tool completes, for metrics (convcore_force_responds_total).
	onForceRespond func(tool string)

	mu           sync.Mutex
	forceRespond bool
}

// NewOrchestrator builds an orchestrator bound to a provider, its tool
// snapshot, a tool executor, and a hook firer. config may be nil.
func NewOrchestrator(provider LLMProvider, tools []Tool, execTool ToolExecutor, fireHook HookFirer, config *OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		provider:   provider,
		tools:      tools,
		execTool:   execTool,
		fireHook:   fireHook,
		config:     sanitizeOrchestratorConfig(config),
		injections: NewInjectionQueue(),
	}
}

// Inject pushes text onto the orchestrator's injection queue. Safe to call
// concurrently with a running Execute.
func (o *Orchestrator) Inject(text string) {
	o.injections.Push(text)
}

// OnForceRespond registers a callback invoked each time a force-respond
// tool completes. Intended for metrics; at most one callback is kept.
func (o *Orchestrator) OnForceRespond(fn func(tool string)) {
	o.onForceRespond = fn
}

// PendingInjections reports how many injected messages are currently
// queued, for progress-line rendering.
func (o *Orchestrator) PendingInjections() int {
	return o.injections.HasPending()
}

func (o *Orchestrator) setForceRespond() {
	o.mu.Lock()
	o.forceRespond = true
	o.mu.Unlock()
}

// takeForceRespond reads and resets the one-shot force-respond flag,
// mirroring how internal/agent/steering.go's SkipRemainingTools is read
// and acted on exactly once.
func (o *Orchestrator) takeForceRespond() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.forceRespond
	o.forceRespond = false
	return v
}

// Execute runs the agent loop against the given message context until a
// terminal text response, an error, iteration-cap exhaustion, or
// cancellation. progress receives a ProgressEvent for each step; it must
// not block (events are dropped, never queued, if the channel is full).
func (o *Orchestrator) Execute(ctx context.Context, messages []CompletionMessage, prompt string, progress chan<- ProgressEvent) (string, error) {
	if o.provider == nil {
		return "", ErrNoProvider
	}

	emit := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		select {
		case progress <- ev:
		default:
		}
	}

	ctxMessages := append([]CompletionMessage{}, messages...)
	ctxMessages = append(ctxMessages, CompletionMessage{Role: "user", Content: prompt})

	var accumulated string

	for iteration := 1; iteration <= o.config.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			emit(ProgressEvent{Kind: ProgressComplete, Status: "cancelled"})
			return accumulated, nil
		default:
		}

		// INJECTION POINT 1: between-turn arrivals.
		if text, n := o.injections.Drain(); n > 0 {
			ctxMessages = append(ctxMessages, CompletionMessage{Role: "user", Content: text})
			emit(ProgressEvent{Kind: ProgressInjectionApplied, InjectedCount: n})
		}

		emit(ProgressEvent{Kind: ProgressThinking, Iteration: iteration})

		select {
		case <-ctx.Done():
			emit(ProgressEvent{Kind: ProgressComplete, Status: "cancelled"})
			return accumulated, nil
		default:
		}

		useTools := o.tools
		if o.takeForceRespond() {
			useTools = nil
		}

		req := &CompletionRequest{
			Model:     o.config.Model,
			System:    o.config.System,
			Messages:  ctxMessages,
			Tools:     useTools,
			MaxTokens: o.config.MaxTokens,
		}

		text, toolCalls, err := o.streamOnce(ctx, req, emit)
		if err != nil {
			emit(ProgressEvent{Kind: ProgressError, Err: err})
			return accumulated, err
		}
		accumulated += text

		ctxMessages = append(ctxMessages, CompletionMessage{Role: "assistant", Content: text, ToolCalls: toolCalls})

		if len(toolCalls) == 0 {
			// INJECTION POINT 2: do not exit on an empty tool-call batch
			// if the user just spoke.
			if text, n := o.injections.Drain(); n > 0 {
				ctxMessages = append(ctxMessages, CompletionMessage{Role: "user", Content: text})
				emit(ProgressEvent{Kind: ProgressInjectionApplied, InjectedCount: n})
				continue
			}
			emit(ProgressEvent{Kind: ProgressComplete, Status: "ok"})
			return accumulated, nil
		}

		results := o.executeTools(ctx, toolCalls, emit)
		ctxMessages = append(ctxMessages, CompletionMessage{Role: "tool", ToolResults: results})

		// INJECTION POINT 3: arrivals during tool execution.
		if text, n := o.injections.Drain(); n > 0 {
			ctxMessages = append(ctxMessages, CompletionMessage{Role: "user", Content: text})
			emit(ProgressEvent{Kind: ProgressInjectionApplied, InjectedCount: n})
		}
	}

	emit(ProgressEvent{Kind: ProgressError, Err: ErrMaxIterations})
	return accumulated, ErrMaxIterations
}

// streamOnce performs a single provider call, accumulating text and
// emitting content:delta events per token, and parsing out tool calls.
func (o *Orchestrator) streamOnce(ctx context.Context, req *CompletionRequest, emit func(ProgressEvent)) (string, []models.ToolCall, error) {
	chunks, err := o.provider.Complete(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return text.String(), toolCalls, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emit(ProgressEvent{Kind: ProgressContentDelta, Text: chunk.Text})
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			break
		}
	}
	return text.String(), toolCalls, nil
}

// executeTools runs every tool call concurrently, one goroutine per call
// writing to its own index in results, per §4.2.1's "for each tool_call in
// parallel" — mirroring the indexed-parallel-write shape roundtable.go uses
// for its errgroup fan-out.
func (o *Orchestrator) executeTools(ctx context.Context, calls []models.ToolCall, emit func(ProgressEvent)) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		i, call := i, call
		go func() {
			defer wg.Done()
			results[i] = o.executeOneTool(ctx, call, emit)
		}()
	}
	wg.Wait()

	return results
}

// executeOneTool runs a single tool call: pre/post hooks, denial and error
// conversion into a tool-result message per §4.2.4, and flipping the
// force-respond flag when a configured tool completes. Safe to run
// concurrently with other calls to executeOneTool: emit is a non-blocking
// channel send, setForceRespond takes its own lock, and onForceRespond's
// registered callback increments a prometheus counter.
func (o *Orchestrator) executeOneTool(ctx context.Context, call models.ToolCall, emit func(ProgressEvent)) models.ToolResult {
	start := time.Now()
	digest := argsDigest(call)
	emit(ProgressEvent{Kind: ProgressToolStart, ToolName: call.Name, ArgsDigest: digest})

	if o.fireHook != nil {
		if deny, err := o.fireHook(ctx, "tool:pre", call); err != nil || deny {
			reason := "denied by policy"
			if err != nil {
				reason = err.Error()
			}
			emit(ProgressEvent{Kind: ProgressToolEnd, ToolName: call.Name, Duration: time.Since(start)})
			return models.ToolResult{ToolCallID: call.ID, Content: reason, IsError: true}
		}
	}

	result, err := o.runTool(ctx, call)
	if err != nil {
		result = &models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	if o.fireHook != nil {
		_, _ = o.fireHook(ctx, "tool:post", call)
	}

	emit(ProgressEvent{Kind: ProgressToolEnd, ToolName: call.Name, Duration: time.Since(start)})

	if _, ok := o.config.ForceRespondTools[call.Name]; ok {
		o.setForceRespond()
		if o.onForceRespond != nil {
			o.onForceRespond(call.Name)
		}
	}

	return *result
}

func (o *Orchestrator) runTool(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	if o.execTool == nil {
		return nil, fmt.Errorf("no tool executor configured for %q", call.Name)
	}
	return o.execTool(ctx, call)
}

func argsDigest(call models.ToolCall) string {
	if len(call.Input) <= 64 {
		return string(call.Input)
	}
	return string(call.Input[:64]) + "..."
}

// NewRunID generates an opaque id for one orchestrator execution, matching
// internal/agent/loop.go's use of uuid.NewString() for run-scoped ids.
func NewRunID() string {
	return uuid.NewString()
}
