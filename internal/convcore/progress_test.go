package convcore

import (
	"strings"
	"testing"
	"time"
)

func TestProgressRendererElapsedBoundaries(t *testing.T) {
	r := NewProgressRenderer("nova")

	t.Run("under 10s is empty", func(t *testing.T) {
		r.start = time.Now().Add(-5 * time.Second)
		if got := r.elapsed(); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})

	t.Run("under a minute renders seconds", func(t *testing.T) {
		r.start = time.Now().Add(-45 * time.Second)
		if got := r.elapsed(); got != "45s" {
			t.Errorf("got %q, want 45s", got)
		}
	})

	t.Run("exact minute renders without seconds", func(t *testing.T) {
		r.start = time.Now().Add(-2 * time.Minute)
		if got := r.elapsed(); got != "2m" {
			t.Errorf("got %q, want 2m", got)
		}
	})

	t.Run("minutes plus seconds render both", func(t *testing.T) {
		r.start = time.Now().Add(-(2*time.Minute + 5*time.Second))
		if got := r.elapsed(); got != "2m 5s" {
			t.Errorf("got %q, want 2m 5s", got)
		}
	})
}

func TestProgressRendererSimpleMode(t *testing.T) {
	r := NewProgressRenderer("nova")
	out := r.Render()
	if out != "⚙️ Thinking…" {
		t.Errorf("got %q", out)
	}

	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "web_search"})
	out = r.Render()
	if out != "⚙️ Web search…" {
		t.Errorf("got %q", out)
	}
}

func TestProgressRendererDelegateShowsAgent(t *testing.T) {
	r := NewProgressRenderer("nova")
	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "delegate", DelegateAgent: "researcher"})
	out := r.Render()
	if out != "⚙️ Delegating to researcher…" {
		t.Errorf("got %q", out)
	}
}

func TestProgressRendererQueuedInjections(t *testing.T) {
	r := NewProgressRenderer("nova")
	r.Apply(ProgressEvent{Kind: ProgressInjectionApplied, InjectedCount: 0})
	r.pendingInjections = 2
	out := r.Render()
	if !strings.Contains(out, "2 message(s) queued") {
		t.Errorf("expected queued count in %q", out)
	}
}

func TestProgressRendererThrottle(t *testing.T) {
	r := NewProgressRenderer("nova")
	_, rendered := r.Apply(ProgressEvent{Kind: ProgressThinking})
	if !rendered {
		t.Fatal("expected first event to render (lastRender is zero value)")
	}
	_, rendered = r.Apply(ProgressEvent{Kind: ProgressThinking})
	if rendered {
		t.Fatal("expected second event within throttle window to be suppressed")
	}

	r.lastRender = time.Now().Add(-3 * time.Second)
	_, rendered = r.Apply(ProgressEvent{Kind: ProgressThinking})
	if !rendered {
		t.Fatal("expected render once throttle window elapses")
	}
}

func TestProgressRendererCompleteNeverRenders(t *testing.T) {
	r := NewProgressRenderer("nova")
	text, rendered := r.Apply(ProgressEvent{Kind: ProgressComplete})
	if rendered || text != "" {
		t.Errorf("got (%q, %v), want no render on completion", text, rendered)
	}
}

func TestProgressRendererPlanModeCollapsesLongLists(t *testing.T) {
	r := NewProgressRenderer("nova")
	todos := []TodoItem{
		{Content: "a", Status: "completed"},
		{Content: "b", Status: "completed"},
		{Content: "c", Status: "completed"},
		{Content: "d", ActiveForm: "doing d", Status: "in_progress"},
		{Content: "e", Status: "pending"},
		{Content: "f", Status: "pending"},
		{Content: "g", Status: "pending"},
	}
	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "todo_write", Todos: todos})

	out := r.Render()
	if !strings.Contains(out, "✅ 3 completed") {
		t.Errorf("expected collapsed completed count, got %q", out)
	}
	if !strings.Contains(out, "▸ *doing d*") {
		t.Errorf("expected in-progress item rendered, got %q", out)
	}
	if !strings.Contains(out, "+3 more") {
		t.Errorf("expected collapsed pending count, got %q", out)
	}
	if !strings.Contains(out, "3 of 7 complete") {
		t.Errorf("expected footer completion tally, got %q", out)
	}
}

func TestProgressRendererPlanModeListsShortLists(t *testing.T) {
	r := NewProgressRenderer("nova")
	todos := []TodoItem{
		{Content: "only one", Status: "completed"},
		{Content: "pending one", Status: "pending"},
	}
	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "todo_write", Todos: todos})

	out := r.Render()
	if !strings.Contains(out, "✅ only one") {
		t.Errorf("expected completed item listed individually, got %q", out)
	}
	if !strings.Contains(out, "pending one") {
		t.Errorf("expected pending item listed individually, got %q", out)
	}
}

func TestProgressRendererSticksInPlanModeOnceEntered(t *testing.T) {
	r := NewProgressRenderer("nova")
	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "todo_write", Todos: []TodoItem{{Content: "x", Status: "pending"}}})
	r.Apply(ProgressEvent{Kind: ProgressToolStart, ToolName: "web_search"})

	out := r.Render()
	if !strings.Contains(out, "---") {
		t.Errorf("expected renderer to remain in plan mode, got %q", out)
	}
}

func TestExtractTodos(t *testing.T) {
	raw := []any{
		map[string]any{"content": "do thing", "activeForm": "doing thing", "status": "in_progress"},
		"not a map",
	}
	items := ExtractTodos(raw)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Content != "do thing" || items[0].Status != "in_progress" {
		t.Errorf("got %+v", items[0])
	}
}

func TestExtractTodosNonSlice(t *testing.T) {
	if got := ExtractTodos("not a slice"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
