package convcore

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/hooks"
	"github.com/haasonsaas/nexus/pkg/models"
)

func TestHookCoordinatorMountAndGetCapability(t *testing.T) {
	c := NewHookCoordinator(nil)

	if _, ok := c.Display(); ok {
		t.Error("expected no display capability mounted yet")
	}

	var shown string
	c.MountSingle(CapabilityDisplay, displayFunc(func(ctx context.Context, text, level, source string) {
		shown = text
	}))

	d, ok := c.Display()
	if !ok {
		t.Fatal("expected display capability to resolve after mounting")
	}
	d.ShowMessage(context.Background(), "hello", "info", "test")
	if shown != "hello" {
		t.Errorf("got %q", shown)
	}
}

// displayFunc adapts a plain function to the DisplayCapability interface for
// testing, matching the pattern http.HandlerFunc uses for http.Handler.
type displayFunc func(ctx context.Context, text, level, source string)

func (f displayFunc) ShowMessage(ctx context.Context, text, level, source string) {
	f(ctx, text, level, source)
}

func TestHookCoordinatorMountAppendsMultipleTools(t *testing.T) {
	c := NewHookCoordinator(nil)
	c.Mount(CapabilityTools, "tool-a")
	c.Mount(CapabilityTools, "tool-b")

	tools := c.GetCapabilities(CapabilityTools)
	if len(tools) != 2 || tools[0] != "tool-a" || tools[1] != "tool-b" {
		t.Errorf("got %v", tools)
	}
}

func TestHookCoordinatorMountSingleReplaces(t *testing.T) {
	c := NewHookCoordinator(nil)
	c.MountSingle(CapabilityApproval, "first")
	c.MountSingle(CapabilityApproval, "second")

	item, ok := c.GetCapability(CapabilityApproval)
	if !ok || item != "second" {
		t.Errorf("got (%v, %v), want second", item, ok)
	}
}

func TestHookCoordinatorFireToolHookAllowsByDefault(t *testing.T) {
	c := NewHookCoordinator(nil)
	deny, err := c.FireToolHook(context.Background(), HookToolPre, models.ToolCall{Name: "search"})
	if err != nil || deny {
		t.Errorf("got (deny=%v, err=%v), want no denial with no handlers", deny, err)
	}
}

func TestHookCoordinatorFireToolHookDenial(t *testing.T) {
	c := NewHookCoordinator(nil)
	c.Register(HookToolPre, func(ctx context.Context, event *hooks.Event) error {
		event.Context["action"] = "deny"
		return nil
	})

	deny, err := c.FireToolHook(context.Background(), HookToolPre, models.ToolCall{Name: "dangerous_tool"})
	if !deny {
		t.Error("expected a handler setting action=deny to deny the call")
	}
	if err == nil {
		t.Error("expected an error describing the denial")
	}
}

func TestHookCoordinatorInjectCapability(t *testing.T) {
	c := NewHookCoordinator(nil)
	var injected string
	c.MountSingle(CapabilityOrchInject, InjectFunc(func(text string) { injected = text }))

	fn, ok := c.Inject()
	if !ok {
		t.Fatal("expected inject capability to resolve")
	}
	fn("extra context")
	if injected != "extra context" {
		t.Errorf("got %q", injected)
	}
}

func TestHookCoordinatorUnregister(t *testing.T) {
	c := NewHookCoordinator(nil)
	id := c.Register(HookToolPre, func(ctx context.Context, event *hooks.Event) error {
		event.Context["action"] = "deny"
		return nil
	})
	if !c.Unregister(id) {
		t.Fatal("expected unregister of a known handler id to succeed")
	}

	deny, _ := c.FireToolHook(context.Background(), HookToolPre, models.ToolCall{Name: "search"})
	if deny {
		t.Error("expected no denial after the denying handler was unregistered")
	}
}
