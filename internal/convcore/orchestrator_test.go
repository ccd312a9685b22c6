package convcore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestInjectionQueue(t *testing.T) {
	t.Run("drain joins pending messages in the literal format", func(t *testing.T) {
		q := NewInjectionQueue()
		q.Push("first")
		q.Push("second")

		text, n := q.Drain()
		if n != 2 {
			t.Fatalf("got n=%d, want 2", n)
		}
		want := "[The user sent additional messages while you were working. Incorporate this into your current task:]\n- first\n- second"
		if text != want {
			t.Errorf("got %q, want %q", text, want)
		}
	})

	t.Run("drain on an empty queue returns zero", func(t *testing.T) {
		q := NewInjectionQueue()
		text, n := q.Drain()
		if n != 0 || text != "" {
			t.Errorf("got (%q, %d)", text, n)
		}
	})

	t.Run("drain empties the queue", func(t *testing.T) {
		q := NewInjectionQueue()
		q.Push("one")
		q.Drain()
		if q.HasPending() != 0 {
			t.Errorf("expected queue empty after drain, got %d pending", q.HasPending())
		}
	})

	t.Run("blank pushes are ignored", func(t *testing.T) {
		q := NewInjectionQueue()
		q.Push("   ")
		q.Push("")
		if q.HasPending() != 0 {
			t.Errorf("expected blank pushes to be dropped, got %d pending", q.HasPending())
		}
	})
}

func TestForceRespondOneShot(t *testing.T) {
	o := &Orchestrator{}
	if o.takeForceRespond() {
		t.Fatal("expected flag unset initially")
	}
	o.setForceRespond()
	if !o.takeForceRespond() {
		t.Fatal("expected flag set after setForceRespond")
	}
	if o.takeForceRespond() {
		t.Fatal("expected flag to reset after being taken once")
	}
}

// fakeProvider scripts a fixed sequence of completions, one per call to
// Complete, mirroring the channel-of-chunks shape internal/agent providers
// use.
type fakeProvider struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text      string
	toolCalls []models.ToolCall
}

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	resp := f.responses[idx]

	ch := make(chan *CompletionChunk, len(resp.toolCalls)+2)
	if resp.text != "" {
		ch <- &CompletionChunk{Text: resp.text}
	}
	for i := range resp.toolCalls {
		call := resp.toolCalls[i]
		ch <- &CompletionChunk{ToolCall: &call}
	}
	ch <- &CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Name() string        { return "fake" }
func (f *fakeProvider) Models() []Model     { return nil }
func (f *fakeProvider) SupportsTools() bool { return true }

// fakeTool is a minimal agent.Tool implementation used only to give the
// orchestrator a non-empty tool list to offer or suppress.
type fakeTool struct{ name string }

func (t fakeTool) Name() string            { return t.name }
func (t fakeTool) Description() string     { return "a fake tool" }
func (t fakeTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (t fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return nil, nil
}

func TestOrchestratorExecuteTextOnly(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{text: "hello there"}}}
	o := NewOrchestrator(provider, nil, nil, nil, nil)

	out, err := o.Execute(context.Background(), nil, "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello there" {
		t.Errorf("got %q", out)
	}
	if provider.calls != 1 {
		t.Errorf("expected exactly one provider call, got %d", provider.calls)
	}
}

func TestOrchestratorExecuteWithToolCall(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{toolCalls: []models.ToolCall{{ID: "t1", Name: "search", Input: json.RawMessage(`{}`)}}},
		{text: "done"},
	}}

	var executed []string
	execTool := func(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
		executed = append(executed, call.Name)
		return &models.ToolResult{ToolCallID: call.ID, Content: "ok"}, nil
	}

	o := NewOrchestrator(provider, []Tool{}, execTool, nil, nil)

	out, err := o.Execute(context.Background(), nil, "search for cats", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("got %q", out)
	}
	if len(executed) != 1 || executed[0] != "search" {
		t.Errorf("expected search tool to run once, got %v", executed)
	}
}

func TestOrchestratorForceRespondSuppressesToolsNextIteration(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{toolCalls: []models.ToolCall{{ID: "t1", Name: "dispatch_worker", Input: json.RawMessage(`{}`)}}},
		{text: "final answer"},
	}}

	var seenTools []int

	execTool := func(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
		return &models.ToolResult{ToolCallID: call.ID, Content: "worker result"}, nil
	}

	tools := []Tool{fakeTool{name: "dispatch_worker"}}
	o := NewOrchestrator(provider, tools, execTool, nil, DefaultOrchestratorConfig())

	var forced []string
	o.OnForceRespond(func(tool string) { forced = append(forced, tool) })

	// Wrap Complete to record how many tools were offered on each call.
	wrapped := &recordingProvider{fakeProvider: provider, seen: &seenTools}
	o.provider = wrapped

	out, err := o.Execute(context.Background(), nil, "dispatch it", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final answer" {
		t.Errorf("got %q", out)
	}
	if len(forced) != 1 || forced[0] != "dispatch_worker" {
		t.Errorf("expected one force-respond callback for dispatch_worker, got %v", forced)
	}
	if len(seenTools) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(seenTools))
	}
	if seenTools[0] != 1 {
		t.Errorf("expected the tool offered on the first iteration, got %d tools offered", seenTools[0])
	}
	if seenTools[1] != 0 {
		t.Errorf("expected tools suppressed on the iteration after force-respond, got %d tools offered", seenTools[1])
	}
}

// recordingProvider wraps a fakeProvider and records len(req.Tools) per call.
type recordingProvider struct {
	*fakeProvider
	seen *[]int
}

func (r *recordingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	*r.seen = append(*r.seen, len(req.Tools))
	return r.fakeProvider.Complete(ctx, req)
}

func TestOrchestratorMaxIterations(t *testing.T) {
	loopCall := models.ToolCall{ID: "t1", Name: "loop", Input: json.RawMessage(`{}`)}
	provider := &loopingProvider{call: loopCall}
	execTool := func(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
		return &models.ToolResult{ToolCallID: call.ID, Content: "again"}, nil
	}

	cfg := DefaultOrchestratorConfig()
	cfg.MaxIterations = 3
	o := NewOrchestrator(provider, []Tool{}, execTool, nil, cfg)

	_, err := o.Execute(context.Background(), nil, "go forever", nil)
	if err != ErrMaxIterations {
		t.Fatalf("got err=%v, want ErrMaxIterations", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected exactly MaxIterations provider calls, got %d", provider.calls)
	}
}

// loopingProvider always returns the same tool call, never terminating on
// its own, to exercise the iteration cap.
type loopingProvider struct {
	call  models.ToolCall
	calls int
}

func (p *loopingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.calls++
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{ToolCall: &p.call}
	ch <- &CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *loopingProvider) Name() string        { return "looping" }
func (p *loopingProvider) Models() []Model     { return nil }
func (p *loopingProvider) SupportsTools() bool { return true }

func TestOrchestratorNoProvider(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, nil)
	_, err := o.Execute(context.Background(), nil, "hi", nil)
	if err != ErrNoProvider {
		t.Fatalf("got %v, want ErrNoProvider", err)
	}
}

func TestOrchestratorHookDenialProducesErrorResult(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{toolCalls: []models.ToolCall{{ID: "t1", Name: "search", Input: json.RawMessage(`{}`)}}},
		{text: "done"},
	}}

	toolRan := false
	execTool := func(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
		toolRan = true
		return &models.ToolResult{ToolCallID: call.ID, Content: "ok"}, nil
	}

	denyHook := func(ctx context.Context, stage string, call models.ToolCall) (bool, error) {
		return stage == "tool:pre", nil
	}

	o := NewOrchestrator(provider, []Tool{}, execTool, denyHook, nil)

	out, err := o.Execute(context.Background(), nil, "search for cats", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("got %q", out)
	}
	if toolRan {
		t.Error("expected tool execution to be skipped on pre-hook denial")
	}
}
