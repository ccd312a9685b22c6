package convcore

import (
	"fmt"
	"strings"
	"time"
)

// statusThrottle is the minimum interval between rendered status updates,
// per §4.4. A plain monotonic-time guard, matching status.go's own lack of
// a throttling dependency to imitate.
const statusThrottle = 2 * time.Second

// ProgressRenderer consumes ProgressEvents for one active execution and
// renders either a single-line "simple mode" status or a multi-line "plan
// mode" status, following §4.4's rendering rules exactly. Once plan mode
// is entered (a todo payload is seen), the execution never reverts to
// simple mode.
type ProgressRenderer struct {
	instanceName string

	planMode bool
	todos    []TodoItem

	currentTool  string
	currentAgent string

	lastRender time.Time
	start      time.Time

	pendingInjections int
}

// NewProgressRenderer creates a renderer for one execution, starting the
// clock used for elapsed-time formatting.
func NewProgressRenderer(instanceName string) *ProgressRenderer {
	return &ProgressRenderer{instanceName: instanceName, start: time.Now()}
}

// Apply updates the renderer's local state from one orchestrator event. It
// returns (text, true) if a render is due (throttled to one per 2s), or
// ("", false) if the event should update state silently.
func (r *ProgressRenderer) Apply(ev ProgressEvent) (string, bool) {
	switch ev.Kind {
	case ProgressToolStart:
		r.currentTool = ev.ToolName
		if ev.ToolName == "delegate" {
			r.currentAgent = ev.DelegateAgent
		}
		if len(ev.Todos) > 0 {
			r.planMode = true
			r.todos = ev.Todos
		}
	case ProgressToolEnd:
		if len(ev.Todos) > 0 {
			r.planMode = true
			r.todos = ev.Todos
		}
	case ProgressInjectionApplied:
		r.pendingInjections = 0
	case ProgressComplete:
		return "", false
	}

	if ev.InjectedCount > 0 {
		r.pendingInjections += ev.InjectedCount
	}

	if !r.due() {
		return "", false
	}
	r.lastRender = time.Now()
	return r.render(), true
}

// due reports whether enough time has passed since the last render.
func (r *ProgressRenderer) due() bool {
	return time.Since(r.lastRender) >= statusThrottle
}

// Render forces a render regardless of throttle state, used for the final
// pre-deletion status line and in tests.
func (r *ProgressRenderer) Render() string {
	return r.render()
}

func (r *ProgressRenderer) render() string {
	if r.planMode {
		return r.renderPlan()
	}
	return r.renderSimple()
}

func (r *ProgressRenderer) renderSimple() string {
	var b strings.Builder
	b.WriteString("⚙️ ")
	if r.currentTool == "delegate" && r.currentAgent != "" {
		fmt.Fprintf(&b, "Delegating to %s…", r.currentAgent)
	} else if r.currentTool != "" {
		fmt.Fprintf(&b, "%s…", friendlyToolName(r.currentTool))
	} else {
		b.WriteString("Thinking…")
	}
	if d := r.elapsed(); d != "" {
		fmt.Fprintf(&b, " · %s", d)
	}
	if r.pendingInjections > 0 {
		fmt.Fprintf(&b, " · %d message(s) queued", r.pendingInjections)
	}
	return b.String()
}

func (r *ProgressRenderer) renderPlan() string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚙️ %s", r.instanceName)
	if d := r.elapsed(); d != "" {
		fmt.Fprintf(&b, " · %s", d)
	}
	b.WriteString("\n---\n")

	var completed, inProgress, pending []TodoItem
	for _, t := range r.todos {
		switch t.Status {
		case "completed":
			completed = append(completed, t)
		case "in_progress":
			inProgress = append(inProgress, t)
		default:
			pending = append(pending, t)
		}
	}

	if len(completed) <= 2 {
		for _, t := range completed {
			fmt.Fprintf(&b, "✅ %s\n", t.Content)
		}
	} else {
		fmt.Fprintf(&b, "✅ %d completed\n", len(completed))
	}

	for _, t := range inProgress {
		fmt.Fprintf(&b, "▸ *%s*\n", t.ActiveForm)
	}

	if len(pending) <= 2 {
		for _, t := range pending {
			fmt.Fprintf(&b, "%s\n", t.Content)
		}
	} else {
		fmt.Fprintf(&b, "+%d more\n", len(pending))
	}

	footerTool := "Thinking"
	if r.currentTool != "" {
		footerTool = friendlyToolName(r.currentTool)
	}
	fmt.Fprintf(&b, "🔧 %s · %d of %d complete", footerTool, len(completed), len(r.todos))
	if r.pendingInjections > 0 {
		fmt.Fprintf(&b, " · %d queued", r.pendingInjections)
	}
	return strings.TrimRight(b.String(), "\n")
}

// elapsed formats the execution's running time per §4.4: empty if under
// 10s, "Ns" under a minute, else "Mm Ss" or "Mm".
func (r *ProgressRenderer) elapsed() string {
	d := time.Since(r.start)
	if d < 10*time.Second {
		return ""
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

func friendlyToolName(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	if name == "" {
		return "Working"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// ExtractTodos parses the todo tool's argument or result payload, which
// may arrive as a parsed object or a JSON string, per §4.4's note that
// "arguments may arrive as a parsed object or as a JSON string — both are
// accepted."
func ExtractTodos(raw any) []TodoItem {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]TodoItem, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, TodoItem{
			Content:    stringField(m, "content"),
			ActiveForm: stringField(m, "activeForm"),
			Status:     stringField(m, "status"),
		})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
