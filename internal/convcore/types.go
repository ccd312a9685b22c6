// Package convcore implements the conversational execution core: the event
// dispatcher, per-conversation session registry, agent orchestration loop,
// roundtable fan-out, progress rendering, and onboarding state that sit
// between a chat transport and the LLM providers in internal/agent.
package convcore

import (
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// InstanceConfig describes one named AI agent configuration: its bundle of
// tools, working directory, and display persona.
type InstanceConfig struct {
	Name           string
	Bundle         string
	WorkingDir     string
	PersonaName    string
	PersonaEmoji   string
	DefaultEnabled bool
}

// Persona returns the display name and emoji used when posting this
// instance's final response.
func (c InstanceConfig) Persona() (name, emoji string) {
	name = c.PersonaName
	if name == "" {
		name = c.Name
	}
	return name, c.PersonaEmoji
}

// RoundtableSentinel marks a conversation as owned by the roundtable mode
// rather than any single instance.
const RoundtableSentinel = "_ROUNDTABLE"

// ConversationID builders. A conversation id is opaque outside this package
// but always one of three shapes: "<channel>:<thread_ts>", "dm:<user>", or
// "summon:<instance>:<msg_ts>".

// ChannelThreadID builds the conversation id for a channel thread.
func ChannelThreadID(channel, threadTS string) string {
	return channel + ":" + threadTS
}

// DMConversationID builds the conversation id for a direct message.
func DMConversationID(user string) string {
	return "dm:" + user
}

// SummonConversationID builds the conversation id (and dedup key) for a
// one-shot summon.
func SummonConversationID(instance, msgTS string) string {
	return "summon:" + instance + ":" + msgTS
}

// ProgressEventKind enumerates the kinds of progress events the orchestrator
// emits, narrowed from pkg/models.AgentEventType to the ones the progress
// pipeline renders.
type ProgressEventKind string

const (
	ProgressToolStart        ProgressEventKind = "tool:start"
	ProgressToolEnd          ProgressEventKind = "tool:end"
	ProgressContentDelta     ProgressEventKind = "content:delta"
	ProgressThinking         ProgressEventKind = "thinking"
	ProgressInjectionApplied ProgressEventKind = "injection:applied"
	ProgressComplete         ProgressEventKind = "complete"
	ProgressError            ProgressEventKind = "error"
)

// ProgressEvent is emitted by the Orchestrator and consumed by the Progress
// Pipeline. Only the fields relevant to Kind are populated.
type ProgressEvent struct {
	Kind ProgressEventKind

	Iteration int

	ToolName    string
	ArgsDigest  string
	DelegateAgent string
	Todos       []TodoItem

	Text string

	InjectedCount int

	Duration time.Duration

	Status string // "ok" | "cancelled" used with ProgressComplete
	Err    error
}

// TodoItem mirrors the shape the "todo" tool's arguments/results carry.
type TodoItem struct {
	Content    string
	ActiveForm string
	Status     string // "completed" | "in_progress" | "pending"
}

// TranscriptRecord is one line of a session's JSONL transcript.
type TranscriptRecord struct {
	Timestamp string              `json:"ts"`
	Kind      string              `json:"kind"` // "message" | "tool_call" | "tool_result" | "system"
	Role      string              `json:"role,omitempty"`
	Content   string              `json:"content,omitempty"`
	ToolCall  *models.ToolCall    `json:"tool_call,omitempty"`
	ToolResult *models.ToolResult `json:"tool_result,omitempty"`
}

// PendingApproval tracks one in-flight approval request awaiting a button
// click or deadline expiry.
type PendingApproval struct {
	CorrelationID string
	Options       []string
	Default       string
	Deadline      time.Time
	done          chan string
}

// Tool re-exports internal/agent.Tool: the orchestrator executes tools
// through the same interface the teacher's providers already speak.
type Tool = agent.Tool

// LLMProvider re-exports internal/agent.LLMProvider.
type LLMProvider = agent.LLMProvider

// CompletionRequest re-exports internal/agent.CompletionRequest.
type CompletionRequest = agent.CompletionRequest

// CompletionMessage re-exports internal/agent.CompletionMessage.
type CompletionMessage = agent.CompletionMessage

// CompletionChunk re-exports internal/agent.CompletionChunk.
type CompletionChunk = agent.CompletionChunk

// Model re-exports internal/agent.Model, completing LLMProvider's
// Models() []Model return type.
type Model = agent.Model

// ToolResult re-exports internal/agent.ToolResult, the return type of
// Tool.Execute.
type ToolResult = agent.ToolResult
