package slack

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/convcore"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

func TestStripMention(t *testing.T) {
	cases := []struct {
		text, botID, want string
	}{
		{"<@U123> hello there", "U123", "hello there"},
		{"hello <@U123>", "U123", "hello <@U123>"},
		{"no mention here", "U123", "no mention here"},
		{"<@U123>", "U123", ""},
	}
	for _, c := range cases {
		if got := stripMention(c.text, c.botID); got != c.want {
			t.Errorf("stripMention(%q, %q) = %q, want %q", c.text, c.botID, got, c.want)
		}
	}
}

func TestEventHubFromMessageEventStripsOwnMention(t *testing.T) {
	h := NewEventHub(nil)
	h.SetBotUserID("U123")

	event := &slackevents.MessageEvent{
		Channel:   "C1",
		User:      "U456",
		Text:      "<@U123> can you help",
		TimeStamp: "100.1",
	}

	msg := h.FromMessageEvent(event, convcore.TopicDirectives{})
	if msg.Text != "can you help" {
		t.Errorf("got %q", msg.Text)
	}
	if !msg.IsMention {
		t.Error("expected IsMention true when the bot's own id is mentioned")
	}
}

func TestEventHubFromMessageEventDetectsDM(t *testing.T) {
	h := NewEventHub(nil)
	h.SetBotUserID("U123")

	event := &slackevents.MessageEvent{Channel: "D1", User: "U456", Text: "hi", TimeStamp: "1"}
	msg := h.FromMessageEvent(event, convcore.TopicDirectives{})
	if !msg.IsDM {
		t.Error("expected IsDM true for a channel id starting with D")
	}
}

func TestEventHubFromAppMentionSetsIsMention(t *testing.T) {
	h := NewEventHub(nil)
	h.SetBotUserID("U123")

	event := &slackevents.AppMentionEvent{
		Channel:   "C1",
		User:      "U456",
		Text:      "<@U123> hello",
		TimeStamp: "2",
	}
	msg := h.FromAppMention(event, convcore.TopicDirectives{})
	if !msg.IsMention {
		t.Error("expected IsMention true for an app_mention event")
	}
	if msg.Channel != "C1" {
		t.Errorf("got channel %q", msg.Channel)
	}
}

func TestEventHubFromReaction(t *testing.T) {
	h := NewEventHub(nil)
	event := &slackevents.ReactionAddedEvent{
		User:     "U456",
		Reaction: "eyes",
		Item:     slackevents.Item{Channel: "C1", Timestamp: "100.1"},
	}
	msg := h.FromReaction(event, true)
	if msg.Reaction != "eyes" || msg.ReactionOnTS != "100.1" || !msg.IsOwnStatusTS {
		t.Errorf("got %+v", msg)
	}
}

func TestParseBlockActionsSkipsIncompleteActions(t *testing.T) {
	callback := &slack.InteractionCallback{
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{
				{BlockID: "corr-1", Value: "approve"},
				{BlockID: "", Value: "approve"},
				{BlockID: "corr-2", Value: ""},
				{BlockID: "corr-3", Value: "deny"},
			},
		},
	}

	actions := ParseBlockActions(callback)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].CorrelationID != "corr-1" || actions[0].Option != "approve" {
		t.Errorf("got %+v", actions[0])
	}
	if actions[1].CorrelationID != "corr-3" || actions[1].Option != "deny" {
		t.Errorf("got %+v", actions[1])
	}
}

func TestHandleApprovalActionsResolvesKnownCorrelation(t *testing.T) {
	broker := convcore.NewApprovalBroker(nil)
	defer broker.Close()

	approval := broker.Request([]string{"approve", "deny"}, "deny", 0)
	HandleApprovalActions(broker, []ApprovalAction{{CorrelationID: approval.CorrelationID, Option: "approve"}})

	if broker.Resolve(approval.CorrelationID, "approve") {
		t.Error("expected the correlation id to already be resolved by HandleApprovalActions")
	}
}

func TestHandleApprovalActionsIgnoresUnknownCorrelation(t *testing.T) {
	broker := convcore.NewApprovalBroker(nil)
	defer broker.Close()

	// Must not panic; unknown clicks are logged, not raised.
	HandleApprovalActions(broker, []ApprovalAction{{CorrelationID: "ghost", Option: "approve"}})
}
