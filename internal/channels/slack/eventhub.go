package slack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/internal/convcore"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// EventHub is the thin seam between the raw Slack event stream and
// convcore's Dispatcher/Registry: it translates slackevents payloads into
// convcore.InboundMessage, and exposes the capability surface (persona
// posts, editable status, reactions, topic lookup) convcore's hooks mount
// against. Adapter.handleMessage's DM/mention/thread-reply gate remains the
// transport's own filter; EventHub additionally recognizes reactions and
// interactive button clicks, which Adapter does not handle at all.
type EventHub struct {
	client *slack.Client

	botUserIDMu sync.RWMutex
	botUserID   string

	topicMu    sync.Mutex
	topicCache map[string]string // channel -> raw topic string
}

// NewEventHub builds a hub bound to a live Slack client, typically the same
// *slack.Client an Adapter already owns.
func NewEventHub(client *slack.Client) *EventHub {
	return &EventHub{client: client, topicCache: make(map[string]string)}
}

// SetBotUserID records the bot's own user id, used for mention detection
// and for telling the user's own reactions apart from the bot's.
func (h *EventHub) SetBotUserID(id string) {
	h.botUserIDMu.Lock()
	h.botUserID = id
	h.botUserIDMu.Unlock()
}

func (h *EventHub) botID() string {
	h.botUserIDMu.RLock()
	defer h.botUserIDMu.RUnlock()
	return h.botUserID
}

// FromMessageEvent converts a message/app_mention payload into an
// InboundMessage, stripping the leading bot-mention token from the text
// when present.
func (h *EventHub) FromMessageEvent(event *slackevents.MessageEvent, topic convcore.TopicDirectives) convcore.InboundMessage {
	text := stripMention(event.Text, h.botID())

	msg := convcore.InboundMessage{
		Channel:      event.Channel,
		ThreadTS:     event.ThreadTimeStamp,
		MessageTS:    event.TimeStamp,
		User:         event.User,
		Text:         text,
		IsDM:         strings.HasPrefix(event.Channel, "D"),
		IsMention:    strings.Contains(event.Text, "<@"+h.botID()+">"),
		IsBotMessage: event.BotID != "",
		Topic:        topic,
	}

	if event.Message != nil {
		for _, f := range event.Message.Files {
			msg.Files = append(msg.Files, convcore.InboundFile{
				Name: f.Name,
				Size: int64(f.Size),
				URL:  f.URLPrivateDownload,
			})
		}
	}

	return msg
}

// FromAppMention converts an app_mention event, reusing FromMessageEvent by
// first reshaping it into the MessageEvent shape, matching
// Adapter.handleAppMention's own conversion.
func (h *EventHub) FromAppMention(event *slackevents.AppMentionEvent, topic convcore.TopicDirectives) convcore.InboundMessage {
	msgEvent := &slackevents.MessageEvent{
		Type:            "message",
		User:            event.User,
		Text:            event.Text,
		Channel:         event.Channel,
		TimeStamp:       event.TimeStamp,
		ThreadTimeStamp: event.ThreadTimeStamp,
	}
	msg := h.FromMessageEvent(msgEvent, topic)
	msg.IsMention = true
	return msg
}

// FromReaction converts a reaction_added event into an InboundMessage
// carrying only the reaction fields the Dispatcher's classification table
// reads.
func (h *EventHub) FromReaction(event *slackevents.ReactionAddedEvent, isOwnStatusTS bool) convcore.InboundMessage {
	return convcore.InboundMessage{
		Channel:       event.Item.Channel,
		User:          event.User,
		Reaction:      event.Reaction,
		ReactionOnTS:  event.Item.Timestamp,
		IsOwnStatusTS: isOwnStatusTS,
	}
}

// stripMention removes a leading "<@USERID>" mention token and surrounding
// whitespace, mirroring convertSlackMessage's mention-stripping loop but
// scoped to the bot's own id only (so an @-mention of a convcore instance
// later in the text survives for ParseInstancePrefix to recognize).
func stripMention(text, botUserID string) string {
	token := "<@" + botUserID + ">"
	if idx := strings.Index(text, token); idx == 0 {
		return strings.TrimSpace(text[len(token):])
	}
	return text
}

// Topic fetches and caches a channel's topic string via conversations.info,
// for TopicDirectives parsing. A cached value is returned without a Slack
// call; callers needing a fresh read should evict first (not exposed here —
// topic directives change rarely enough that one fetch per process
// lifetime per channel is an acceptable default).
func (h *EventHub) Topic(ctx context.Context, channel string) (string, error) {
	h.topicMu.Lock()
	if t, ok := h.topicCache[channel]; ok {
		h.topicMu.Unlock()
		return t, nil
	}
	h.topicMu.Unlock()

	info, err := h.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channel})
	if err != nil {
		return "", fmt.Errorf("slack: fetching conversation info: %w", err)
	}

	topic := info.Topic.Value
	h.topicMu.Lock()
	h.topicCache[channel] = topic
	h.topicMu.Unlock()
	return topic, nil
}

// PostPersona posts a message under an instance's display persona
// (username + icon_emoji), per §6's "persona posts are non-editable" half
// of the two-post pattern.
func (h *EventHub) PostPersona(ctx context.Context, channel, threadTS, text, personaName, personaEmoji string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if personaName != "" {
		opts = append(opts, slack.MsgOptionUsername(personaName))
	}
	if personaEmoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(personaEmoji))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := h.client.PostMessageContext(ctx, channel, opts...)
	return err
}

// PostStatus posts a bot-identity message and returns its timestamp, so the
// caller can later UpdateStatus or delete it — the editable half of the
// two-post pattern.
func (h *EventHub) PostStatus(ctx context.Context, channel, threadTS, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, ts, err := h.client.PostMessageContext(ctx, channel, opts...)
	return ts, err
}

// PostApproval posts an interactive message offering one button per option,
// each action's block id set to correlationID so ParseBlockActions can
// recover which pending approval a later click resolves, per §4.7.
func (h *EventHub) PostApproval(ctx context.Context, channel, threadTS, prompt, correlationID string, options []string) error {
	buttons := make([]slack.BlockElement, 0, len(options))
	for _, opt := range options {
		btn := slack.NewButtonBlockElement(correlationID, opt, slack.NewTextBlockObject("plain_text", opt, false, false))
		buttons = append(buttons, btn)
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", prompt, false, false), nil, nil),
		slack.NewActionBlock(correlationID, buttons...),
	}

	opts := []slack.MsgOption{slack.MsgOptionBlocks(blocks...)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := h.client.PostMessageContext(ctx, channel, opts...)
	return err
}

// UpdateStatus edits a previously posted bot-identity status message via
// chat.update; per §6 this only works on bot-identity posts.
func (h *EventHub) UpdateStatus(ctx context.Context, channel, ts, text string) error {
	_, _, _, err := h.client.UpdateMessageContext(ctx, channel, ts, slack.MsgOptionText(text, false))
	return err
}

// DeleteStatus removes a status message once the execution completes.
func (h *EventHub) DeleteStatus(ctx context.Context, channel, ts string) error {
	_, _, err := h.client.DeleteMessageContext(ctx, channel, ts)
	return err
}

// AddReaction and RemoveReaction toggle a reaction on a message, used for
// the regenerate/cancel affordances and for acknowledging a summon.
func (h *EventHub) AddReaction(ctx context.Context, channel, ts, name string) error {
	return h.client.AddReactionContext(ctx, name, slack.ItemRef{Channel: channel, Timestamp: ts})
}

func (h *EventHub) RemoveReaction(ctx context.Context, channel, ts, name string) error {
	return h.client.RemoveReactionContext(ctx, name, slack.ItemRef{Channel: channel, Timestamp: ts})
}

// FetchMessageText retrieves the text of a message a reaction landed on, for
// the summon preamble, via conversations.history scoped to a single ts.
func (h *EventHub) FetchMessageText(ctx context.Context, channel, ts string) (string, error) {
	resp, err := h.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return "", fmt.Errorf("slack: fetching summoned message: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("slack: message %s not found in %s", ts, channel)
	}
	return resp.Messages[0].Text, nil
}

// ApprovalAction is one button click from a block_actions interaction
// payload, carrying the correlation id (action block id) and the chosen
// option (action value).
type ApprovalAction struct {
	CorrelationID string
	Option        string
}

// ParseBlockActions extracts approval button clicks from an interaction
// callback. Non-approval actions (unrecognized block ids) are skipped.
func ParseBlockActions(callback *slack.InteractionCallback) []ApprovalAction {
	var out []ApprovalAction
	for _, action := range callback.ActionCallback.BlockActions {
		if action.BlockID == "" || action.Value == "" {
			continue
		}
		out = append(out, ApprovalAction{CorrelationID: action.BlockID, Option: action.Value})
	}
	return out
}

// HandleApprovalActions resolves each parsed button click against a broker,
// logging (never raising) any click referring to an unknown or already-
// resolved correlation id — matching DisplayChannel's "logged, not raised"
// treatment of Slack-facing failures.
func HandleApprovalActions(broker *convcore.ApprovalBroker, actions []ApprovalAction) {
	for _, a := range actions {
		if !broker.Resolve(a.CorrelationID, a.Option) {
			log.Printf("slack: approval click for unknown/resolved correlation id %s", a.CorrelationID)
		}
	}
}
