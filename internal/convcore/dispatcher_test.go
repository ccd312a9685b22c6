package convcore

import "testing"

func testInstances() *InstanceRegistry {
	return NewInstanceRegistry([]InstanceConfig{
		{Name: "nova", DefaultEnabled: true},
		{Name: "echo"},
	}, "")
}

func TestParseInstancePrefix(t *testing.T) {
	names := []string{"nova", "echo"}

	t.Run("colon prefix", func(t *testing.T) {
		inst, remaining, explicit := ParseInstancePrefix("nova: hello there", names, "nova")
		if !explicit || inst != "nova" || remaining != "hello there" {
			t.Errorf("got (%q, %q, %v)", inst, remaining, explicit)
		}
	})

	t.Run("colon prefix is case insensitive", func(t *testing.T) {
		inst, _, explicit := ParseInstancePrefix("NOVA: hi", names, "nova")
		if !explicit || inst != "nova" {
			t.Errorf("got (%q, %v)", inst, explicit)
		}
	})

	t.Run("at prefix", func(t *testing.T) {
		inst, remaining, explicit := ParseInstancePrefix("@echo what's up", names, "nova")
		if !explicit || inst != "echo" || remaining != "what's up" {
			t.Errorf("got (%q, %q, %v)", inst, remaining, explicit)
		}
	})

	t.Run("hey niceties", func(t *testing.T) {
		inst, remaining, explicit := ParseInstancePrefix("hey echo, can you help", names, "nova")
		if !explicit || inst != "echo" || remaining != "can you help" {
			t.Errorf("got (%q, %q, %v)", inst, remaining, explicit)
		}
	})

	t.Run("hi niceties", func(t *testing.T) {
		inst, _, explicit := ParseInstancePrefix("hi Nova, question", names, "nova")
		if !explicit || inst != "nova" {
			t.Errorf("got (%q, %v)", inst, explicit)
		}
	})

	t.Run("no recognized prefix falls back to default", func(t *testing.T) {
		inst, remaining, explicit := ParseInstancePrefix("what time is it", names, "nova")
		if explicit || inst != "nova" || remaining != "what time is it" {
			t.Errorf("got (%q, %q, %v)", inst, remaining, explicit)
		}
	})

	t.Run("colon present but not a known name is not explicit", func(t *testing.T) {
		inst, _, explicit := ParseInstancePrefix("note: buy milk", names, "nova")
		if explicit || inst != "nova" {
			t.Errorf("got (%q, %v)", inst, explicit)
		}
	})
}

func TestParseTopicDirectives(t *testing.T) {
	t.Run("parses all three directives alongside prose", func(t *testing.T) {
		topic := "General chat [instance:nova] some prose [default:echo] and [mode:roundtable] more"
		d := ParseTopicDirectives(topic)
		if d.ForcedInstance != "nova" || d.DefaultInstance != "echo" || !d.Roundtable {
			t.Errorf("got %+v", d)
		}
	})

	t.Run("no directives yields zero value", func(t *testing.T) {
		d := ParseTopicDirectives("just a plain topic")
		if d.ForcedInstance != "" || d.DefaultInstance != "" || d.Roundtable {
			t.Errorf("got %+v", d)
		}
	})
}

func TestDispatcherClassify(t *testing.T) {
	instances := testInstances()

	t.Run("DM routes as mention with default instance", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{IsDM: true, User: "u1", Text: "hello", Channel: "D1"})
		if c.Kind != ClassMention || c.Instance != "nova" {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("reaction matching an instance name is a summon", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Reaction: "echo", ReactionOnTS: "100.1", Channel: "C1"})
		if c.Kind != ClassSummon || c.Instance != "echo" {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("arrows_counterclockwise reaction is regenerate", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Reaction: "arrows_counterclockwise", Channel: "C1", ReactionOnTS: "1"})
		if c.Kind != ClassRegenerate {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("x reaction on own status message is cancel", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Reaction: "x", IsOwnStatusTS: true, Channel: "C1"})
		if c.Kind != ClassCancel {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("x reaction elsewhere is ignored", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Reaction: "x", IsOwnStatusTS: false, Channel: "C1"})
		if c.Kind != ClassIgnore {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("existing thread owner routes as follow-up", func(t *testing.T) {
		owners := NewThreadOwnerMap(10)
		d := NewDispatcher(instances, owners, 10)
		owners.Set(ChannelThreadID("C1", "1"), "echo")
		c := d.Classify(InboundMessage{Channel: "C1", ThreadTS: "1", Text: "continue please"})
		if c.Kind != ClassFollowUp || c.Instance != "echo" {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("roundtable sentinel owner is not a follow-up route", func(t *testing.T) {
		owners := NewThreadOwnerMap(10)
		d := NewDispatcher(instances, owners, 10)
		owners.Set(ChannelThreadID("C1", "1"), RoundtableSentinel)
		c := d.Classify(InboundMessage{Channel: "C1", ThreadTS: "1", Text: "another thought"})
		if c.Kind == ClassFollowUp {
			t.Errorf("expected non-follow-up classification, got %+v", c)
		}
	})

	t.Run("explicit prefix overrides thread ownership", func(t *testing.T) {
		owners := NewThreadOwnerMap(10)
		d := NewDispatcher(instances, owners, 10)
		owners.Set(ChannelThreadID("C1", "1"), "echo")
		c := d.Classify(InboundMessage{Channel: "C1", ThreadTS: "1", Text: "nova: override please"})
		if c.Kind != ClassExplicit || c.Instance != "nova" {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("file share classifies regardless of addressing", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Channel: "C1", ThreadTS: "1", Files: []InboundFile{{Name: "a.png"}}})
		if c.Kind != ClassFileShare {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("unaddressed message in a plain channel is ignored", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{Channel: "C1", ThreadTS: "1", Text: "just chatting"})
		if c.Kind != ClassIgnore {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("roundtable topic routes unaddressed messages to roundtable", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{
			Channel: "C1", ThreadTS: "1", Text: "what do you all think",
			Topic: TopicDirectives{Roundtable: true},
		})
		if c.Kind != ClassRoundtable {
			t.Errorf("got %+v", c)
		}
	})

	t.Run("roundtable topic still honors explicit addressing", func(t *testing.T) {
		d := NewDispatcher(instances, NewThreadOwnerMap(10), 10)
		c := d.Classify(InboundMessage{
			Channel: "C1", ThreadTS: "1", Text: "echo: just you please",
			Topic: TopicDirectives{Roundtable: true},
		})
		if c.Kind != ClassExplicit || c.Instance != "echo" {
			t.Errorf("got %+v", c)
		}
	})
}

func TestSummonPreamble(t *testing.T) {
	got := SummonPreamble("alice", "nova", "general", "what do you think?")
	want := "[alice summoned you by reacting with :nova: to this message in #general]\nwhat do you think?"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSummonDedup(t *testing.T) {
	t.Run("second observation of the same key is a duplicate", func(t *testing.T) {
		d := NewSummonDedup(10)
		key := SummonConversationID("nova", "100.1")
		if d.Seen(key) {
			t.Error("expected first observation to be unseen")
		}
		if !d.Seen(key) {
			t.Error("expected second observation to be seen")
		}
	})
}
