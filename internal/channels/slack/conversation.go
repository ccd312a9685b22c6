package slack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/convcore"
	"github.com/slack-go/slack/slackevents"
)

// ConversationConfig carries the dependencies the Slack adapter needs to
// construct and drive internal/convcore's conversational execution core.
// A nil Conversation field on Config leaves Adapter on its original
// generic-channel behavior; a non-nil one replaces handleMessage's
// DM/mention/thread-reply gate with the full §4.3 classification table.
type ConversationConfig struct {
	Instances           []convcore.InstanceConfig
	DefaultInstance     string
	ResolveProvider     convcore.ProviderResolver
	ResolveTools        convcore.ToolSetResolver
	OrchestratorConfig  *convcore.OrchestratorConfig
	TranscriptDir       string
	LockTimeout         time.Duration
	ApprovalTimeout     time.Duration
	ThreadOwnerCapacity int
	SummonCapacity      int
	Logger              *slog.Logger
}

// slackLocation is where to post a conversation's responses: the channel
// and, when threaded, the parent message's timestamp.
type slackLocation struct {
	Channel  string
	ThreadTS string
}

// conversationRouter binds one live Slack client to convcore's dispatcher
// and session registry: it classifies inbound events, drives executions or
// roundtable fan-out, and posts results and throttled progress back out
// through an EventHub. Grounded on Adapter.handleMessage's original
// DM/mention/thread gate, generalized to the full classification table.
type conversationRouter struct {
	hub         *EventHub
	instances   *convcore.InstanceRegistry
	threadOwner *convcore.ThreadOwnerMap
	dispatcher  *convcore.Dispatcher
	registry    *convcore.Registry
	roundtable  *convcore.Roundtable
	approvals   *convcore.ApprovalBroker
	metrics     *convcore.Metrics
	logger      *slog.Logger

	display         *convcore.DisplayChannel
	approvalTimeout time.Duration

	mu         sync.Mutex
	locations  map[string]slackLocation
	lastPrompt map[string]string // conversationID -> last executed prompt, for regenerate
	statusTS   map[string]string // "channel:ts" -> conversationID, for cancel-reaction lookup
}

func newConversationRouter(hub *EventHub, cfg *ConversationConfig) *conversationRouter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	instances := convcore.NewInstanceRegistry(cfg.Instances, cfg.DefaultInstance)
	threadOwner := convcore.NewThreadOwnerMap(cfg.ThreadOwnerCapacity)
	metrics := convcore.NewMetrics()

	var transcripts *convcore.TranscriptStore
	if cfg.TranscriptDir != "" {
		transcripts = convcore.NewTranscriptStore(cfg.TranscriptDir)
	}

	registry := convcore.NewRegistry(logger, transcripts, cfg.LockTimeout, cfg.ResolveProvider, cfg.ResolveTools, cfg.OrchestratorConfig, metrics)

	approvalTimeout := cfg.ApprovalTimeout
	if approvalTimeout <= 0 {
		approvalTimeout = 5 * time.Minute
	}

	r := &conversationRouter{
		hub:             hub,
		instances:       instances,
		threadOwner:     threadOwner,
		registry:        registry,
		approvals:       convcore.NewApprovalBroker(logger),
		metrics:         metrics,
		logger:          logger.With("component", "slack.conversation"),
		approvalTimeout: approvalTimeout,
		locations:       make(map[string]slackLocation),
		lastPrompt:      make(map[string]string),
		statusTS:        make(map[string]string),
	}
	r.display = convcore.NewDisplayChannel(logger, r.postDisplay)
	r.dispatcher = convcore.NewDispatcher(instances, threadOwner, cfg.SummonCapacity)
	r.roundtable = convcore.NewRoundtable(instances, threadOwner, r.execForRoundtable, r.postForRoundtable, metrics)
	return r
}

// postDisplay posts a plain bot-identity message into a conversation's
// location, the transport DisplayChannel mounts against.
func (r *conversationRouter) postDisplay(ctx context.Context, conversationID, text string) error {
	loc := r.location(conversationID)
	return r.hub.PostPersona(ctx, loc.Channel, loc.ThreadTS, text, "", "")
}

// mountCapabilities wires this conversation's display and approval
// capabilities onto its session's HookCoordinator, per Registry.Hooks'
// documented extension point (§4.6).
func (r *conversationRouter) mountCapabilities(instance, conversationID string) {
	coord, err := r.registry.Hooks(instance, conversationID)
	if err != nil {
		return
	}
	coord.MountSingle(convcore.CapabilityDisplay, sessionDisplay{channel: r.display, conversationID: conversationID})
	coord.MountSingle(convcore.CapabilityApproval, sessionApproval{router: r, conversationID: conversationID})
}

// sessionDisplay binds one conversation id to the router's shared
// DisplayChannel, satisfying convcore.DisplayCapability.
type sessionDisplay struct {
	channel        *convcore.DisplayChannel
	conversationID string
}

func (d sessionDisplay) ShowMessage(ctx context.Context, text, level, source string) {
	d.channel.ShowMessage(ctx, d.conversationID, text, level, source)
}

// sessionApproval satisfies convcore.ApprovalCapability by posting an
// interactive button message and awaiting either a click or timeout.
type sessionApproval struct {
	router         *conversationRouter
	conversationID string
}

func (a sessionApproval) RequestApproval(ctx context.Context, prompt string, options []string, def string, timeoutSeconds int) (string, error) {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = a.router.approvalTimeout
	}
	approval := a.router.approvals.Request(options, def, timeout)

	loc := a.router.location(a.conversationID)
	if err := a.router.hub.PostApproval(ctx, loc.Channel, loc.ThreadTS, prompt, approval.CorrelationID, options); err != nil {
		a.router.logger.Warn("posting approval request failed", "error", err)
	}

	return a.router.approvals.Await(ctx, approval)
}

// HandleAppMentionEvent converts and routes an app_mention callback.
func (r *conversationRouter) HandleAppMentionEvent(ctx context.Context, event *slackevents.AppMentionEvent) {
	topic := r.resolveTopic(ctx, event.Channel)
	r.route(ctx, r.hub.FromAppMention(event, topic))
}

// HandleMessageEvent converts and routes a message callback.
func (r *conversationRouter) HandleMessageEvent(ctx context.Context, event *slackevents.MessageEvent) {
	topic := r.resolveTopic(ctx, event.Channel)
	r.route(ctx, r.hub.FromMessageEvent(event, topic))
}

// HandleReactionAdded converts and routes a reaction_added callback.
func (r *conversationRouter) HandleReactionAdded(ctx context.Context, event *slackevents.ReactionAddedEvent) {
	r.mu.Lock()
	_, isOwnStatus := r.statusTS[statusKey(event.Item.Channel, event.Item.Timestamp)]
	r.mu.Unlock()
	r.route(ctx, r.hub.FromReaction(event, isOwnStatus))
}

func (r *conversationRouter) resolveTopic(ctx context.Context, channel string) convcore.TopicDirectives {
	raw, err := r.hub.Topic(ctx, channel)
	if err != nil {
		return convcore.TopicDirectives{}
	}
	return convcore.ParseTopicDirectives(raw)
}

func statusKey(channel, ts string) string {
	return channel + ":" + ts
}

// route classifies one inbound event and dispatches it per its
// Classification.Kind, per spec §4.3.
func (r *conversationRouter) route(ctx context.Context, msg convcore.InboundMessage) {
	class := r.dispatcher.Classify(msg)
	if class.Kind == convcore.ClassIgnore {
		return
	}

	threadTS := msg.ThreadTS
	if threadTS == "" {
		threadTS = msg.MessageTS
	}
	r.mu.Lock()
	r.locations[class.ConversationID] = slackLocation{Channel: msg.Channel, ThreadTS: threadTS}
	r.mu.Unlock()

	switch class.Kind {
	case convcore.ClassCancel:
		r.cancel(class.ConversationID)
	case convcore.ClassRegenerate:
		r.regenerate(ctx, class.ConversationID)
	case convcore.ClassRoundtable:
		go r.runRoundtable(ctx, class.ConversationID, class.Prompt)
	default:
		instance := class.Instance
		if instance == "" {
			if def, ok := r.instances.Default(); ok {
				instance = def.Name
			}
		}
		if instance == "" {
			return
		}
		if class.Kind == convcore.ClassFollowUp && r.registry.Notify(instance, class.ConversationID, class.Prompt) {
			return
		}
		go r.execute(ctx, instance, class.ConversationID, class.Prompt)
	}
}

func (r *conversationRouter) cancel(conversationID string) {
	instance, ok := r.threadOwner.Get(conversationID)
	if !ok || instance == convcore.RoundtableSentinel {
		return
	}
	r.registry.Cancel(instance, conversationID)
}

func (r *conversationRouter) regenerate(ctx context.Context, conversationID string) {
	instance, ok := r.threadOwner.Get(conversationID)
	if !ok || instance == convcore.RoundtableSentinel {
		return
	}
	r.mu.Lock()
	prompt := r.lastPrompt[conversationID]
	r.mu.Unlock()
	if prompt == "" {
		return
	}
	go r.execute(ctx, instance, conversationID, prompt)
}

func (r *conversationRouter) location(conversationID string) slackLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locations[conversationID]
}

// execute drives one full turn: posts an editable status message, streams
// throttled progress renders into it, runs the orchestrator via the
// Session Registry, then replaces the status with the final persona post.
func (r *conversationRouter) execute(ctx context.Context, instance, conversationID, prompt string) {
	r.mu.Lock()
	r.lastPrompt[conversationID] = prompt
	r.mu.Unlock()

	r.mountCapabilities(instance, conversationID)

	loc := r.location(conversationID)
	renderer := convcore.NewProgressRenderer(instance)

	statusTS, err := r.hub.PostStatus(ctx, loc.Channel, loc.ThreadTS, renderer.Render())
	if err != nil {
		r.logger.Warn("posting status message failed", "error", err, "instance", instance)
	} else if statusTS != "" {
		r.mu.Lock()
		r.statusTS[statusKey(loc.Channel, statusTS)] = conversationID
		r.mu.Unlock()
	}

	progress := make(chan convcore.ProgressEvent, 32)
	rendersDone := make(chan struct{})
	go func() {
		defer close(rendersDone)
		for ev := range progress {
			if text, due := renderer.Apply(ev); due && statusTS != "" {
				if err := r.hub.UpdateStatus(ctx, loc.Channel, statusTS, text); err != nil {
					r.logger.Warn("updating status message failed", "error", err, "instance", instance)
				}
			}
		}
	}()

	text, execErr := r.registry.Execute(ctx, instance, conversationID, prompt, progress)
	close(progress)
	<-rendersDone

	if statusTS != "" {
		if err := r.hub.DeleteStatus(ctx, loc.Channel, statusTS); err != nil {
			r.logger.Warn("deleting status message failed", "error", err, "instance", instance)
		}
		r.mu.Lock()
		delete(r.statusTS, statusKey(loc.Channel, statusTS))
		r.mu.Unlock()
	}

	r.threadOwner.Set(conversationID, instance)

	if execErr != nil && text == "" {
		text = "⚠️ " + execErr.Error()
	}
	if text == "" {
		return
	}

	name, emoji := instance, ""
	if inst, ok := r.instances.Get(instance); ok {
		name, emoji = inst.Persona()
	}
	if err := r.hub.PostPersona(ctx, loc.Channel, loc.ThreadTS, text, name, emoji); err != nil {
		r.logger.Warn("posting persona response failed", "error", err, "instance", instance)
	}
}

func (r *conversationRouter) runRoundtable(ctx context.Context, conversationID, prompt string) {
	r.mu.Lock()
	r.lastPrompt[conversationID] = prompt
	r.mu.Unlock()
	if _, err := r.roundtable.Run(ctx, conversationID, prompt); err != nil {
		r.logger.Warn("roundtable run failed", "error", err)
	}
}

// execForRoundtable adapts the Session Registry's Execute into
// convcore.RoundtableExecFunc's narrower, progress-less shape.
func (r *conversationRouter) execForRoundtable(ctx context.Context, instance, conversationID, prompt string) (string, error) {
	r.mountCapabilities(instance, conversationID)
	return r.registry.Execute(ctx, instance, conversationID, prompt, nil)
}

// postForRoundtable adapts EventHub.PostPersona into
// convcore.RoundtablePoster's shape.
func (r *conversationRouter) postForRoundtable(ctx context.Context, instance, conversationID, text string) error {
	loc := r.location(conversationID)
	name, emoji := instance, ""
	if inst, ok := r.instances.Get(instance); ok {
		name, emoji = inst.Persona()
	}
	return r.hub.PostPersona(ctx, loc.Channel, loc.ThreadTS, text, name, emoji)
}

// HandleInteraction resolves block_actions approval button clicks against
// the router's approval broker.
func (r *conversationRouter) HandleInteraction(actions []ApprovalAction) {
	HandleApprovalActions(r.approvals, actions)
}
