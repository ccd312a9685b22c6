package convcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/nexus/internal/hooks"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Hook event keys used by the Hook Coordinator, matching internal/hooks'
// string-keyed registration shape but scoped to the conversational core.
const (
	HookToolPre          = "tool:pre"
	HookToolPost         = "tool:post"
	HookPromptSubmit     = "prompt:submit"
	HookProviderRequest  = "provider:request"
	HookInjectionApplied = "injection:applied"
)

// Named capability slots, per §4.6.
const (
	CapabilityTools       = "tools"
	CapabilityDisplay     = "display"
	CapabilityApproval    = "approval"
	CapabilityOrchInject  = "orchestrator.inject"
)

// DisplayCapability shows a message to the user in the conversation,
// level-tagged per §4.7.
type DisplayCapability interface {
	ShowMessage(ctx context.Context, text string, level string, source string)
}

// ApprovalCapability requests a user decision among options, resolving to
// the default after timeout.
type ApprovalCapability interface {
	RequestApproval(ctx context.Context, prompt string, options []string, def string, timeout int) (string, error)
}

// InjectFunc is the capability exposed for orchestrator.inject: any looker-
// upper that has the session's name can push text into a running execution
// without holding a direct reference to the Orchestrator itself. This late
// binding is what breaks the Orchestrator <-> HookCoordinator <-> Tools
// cycle named in spec §9.
type InjectFunc func(text string)

// HookCoordinator is a per-session object mounting named capabilities
// (tools, display, approval, orchestrator.inject) and dispatching the
// tool:pre/tool:post/prompt:submit/provider:request/injection:applied
// events. Wraps internal/hooks.Registry for the event half; the capability
// half is new, keyed by capability name rather than a generated UUID since
// capabilities are looked up by well-known name, not individually
// unregistered.
type HookCoordinator struct {
	registry *hooks.Registry

	mu           sync.RWMutex
	capabilities map[string][]any
}

// NewHookCoordinator creates a coordinator with its own hook registry. If
// logger is nil, slog.Default() is used, matching hooks.NewRegistry.
func NewHookCoordinator(logger *slog.Logger) *HookCoordinator {
	return &HookCoordinator{
		registry:     hooks.NewRegistry(logger),
		capabilities: make(map[string][]any),
	}
}

// Mount appends an item to a named capability category. Mounts may happen
// after session creation — connector-provided tools bound to a live Slack
// client are mounted after get_or_create so they close over the right
// channel/thread, per §4.6.
func (c *HookCoordinator) Mount(category string, item any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities[category] = append(c.capabilities[category], item)
}

// MountSingle replaces a category with exactly one item, for the
// single-valued capabilities (display, approval, orchestrator.inject).
func (c *HookCoordinator) MountSingle(category string, item any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities[category] = []any{item}
}

// GetCapability returns the first item mounted under a category, if any.
func (c *HookCoordinator) GetCapability(category string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := c.capabilities[category]
	if len(items) == 0 {
		return nil, false
	}
	return items[0], true
}

// GetCapabilities returns every item mounted under a category, for
// multi-valued capabilities like "tools".
func (c *HookCoordinator) GetCapabilities(category string) []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]any, len(c.capabilities[category]))
	copy(out, c.capabilities[category])
	return out
}

// Display resolves the mounted display capability, if any.
func (c *HookCoordinator) Display() (DisplayCapability, bool) {
	item, ok := c.GetCapability(CapabilityDisplay)
	if !ok {
		return nil, false
	}
	d, ok := item.(DisplayCapability)
	return d, ok
}

// Approval resolves the mounted approval capability, if any.
func (c *HookCoordinator) Approval() (ApprovalCapability, bool) {
	item, ok := c.GetCapability(CapabilityApproval)
	if !ok {
		return nil, false
	}
	a, ok := item.(ApprovalCapability)
	return a, ok
}

// Inject resolves the mounted orchestrator.inject capability, if any.
func (c *HookCoordinator) Inject() (InjectFunc, bool) {
	item, ok := c.GetCapability(CapabilityOrchInject)
	if !ok {
		return nil, false
	}
	fn, ok := item.(InjectFunc)
	return fn, ok
}

// Register adds a handler for one of the HookX event keys, returning the
// registration id for later Unregister.
func (c *HookCoordinator) Register(eventKey string, handler hooks.Handler, opts ...hooks.RegisterOption) string {
	return c.registry.Register(eventKey, handler, opts...)
}

// Unregister removes a previously registered handler.
func (c *HookCoordinator) Unregister(id string) bool {
	return c.registry.Unregister(id)
}

// FireToolHook triggers tool:pre or tool:post for a tool call, returning
// deny=true if any handler's metadata carries {"action":"deny"}. Matches
// §4.2.4's "pre-hook returns deny" semantics.
func (c *HookCoordinator) FireToolHook(ctx context.Context, stage string, call models.ToolCall) (bool, error) {
	event := &hooks.Event{
		Type:    hooks.EventType(stage),
		Context: map[string]any{"tool_name": call.Name, "tool_call_id": call.ID},
	}
	if err := c.registry.Trigger(ctx, event); err != nil {
		return false, err
	}
	if event.Context != nil {
		if action, ok := event.Context["action"].(string); ok && action == "deny" {
			return true, fmt.Errorf("denied by hook")
		}
	}
	return false, nil
}

// FireInjectionApplied triggers the injection:applied event after an
// injection queue drain, carrying the count of messages applied.
func (c *HookCoordinator) FireInjectionApplied(ctx context.Context, count int) {
	_ = c.registry.Trigger(ctx, &hooks.Event{
		Type:    HookInjectionApplied,
		Context: map[string]any{"count": count},
	})
}
