package convcore

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/cache"
)

// ClassificationKind enumerates the Event Dispatcher's classification table
// outcomes, first-match-wins, per §4.3.
type ClassificationKind string

const (
	ClassSummon     ClassificationKind = "summon"
	ClassRegenerate ClassificationKind = "regenerate"
	ClassCancel     ClassificationKind = "cancel"
	ClassFileShare  ClassificationKind = "file_share"
	ClassRoundtable ClassificationKind = "roundtable"
	ClassDirected   ClassificationKind = "directed_forced"
	ClassExplicit   ClassificationKind = "directed_explicit"
	ClassFollowUp   ClassificationKind = "follow_up"
	ClassDefault    ClassificationKind = "default"
	ClassMention    ClassificationKind = "mention"
	ClassIgnore     ClassificationKind = "ignore"
)

// Classification is the result of routing one inbound event: a target
// instance, conversation id, and the prompt text to execute (or inject).
type Classification struct {
	Kind           ClassificationKind
	Instance       string
	ConversationID string
	Prompt         string
	WasExplicit    bool
	DedupKey       string
}

// TopicDirectives are the parsed `[instance:<name>]` / `[default:<name>]` /
// `[mode:roundtable]` tags from a channel topic string, per §6.
type TopicDirectives struct {
	ForcedInstance  string
	DefaultInstance string
	Roundtable      bool
}

var topicDirectiveRE = regexp.MustCompile(`\[(instance|default|mode):([^\]]+)\]`)

// ParseTopicDirectives extracts directives from a channel topic string;
// multiple directives may coexist with prose text.
func ParseTopicDirectives(topic string) TopicDirectives {
	var out TopicDirectives
	for _, m := range topicDirectiveRE.FindAllStringSubmatch(topic, -1) {
		key, value := m[1], strings.TrimSpace(m[2])
		switch key {
		case "instance":
			out.ForcedInstance = value
		case "default":
			out.DefaultInstance = value
		case "mode":
			if strings.EqualFold(value, "roundtable") {
				out.Roundtable = true
			}
		}
	}
	return out
}

var (
	heyHiRE = regexp.MustCompile(`(?i)^(hey|hi)\s+([a-z0-9_-]+)\s*,\s*`)
)

// ParseInstancePrefix recognizes a leading instance name in free text, per
// §4.3.1's three-branch recognition order:
//  1. leading "<name>:<sp>…" (case-insensitive)
//  2. leading "@<name>…"
//  3. leading "hey <name>," / "hi <name>,…" (case-insensitive)
//
// Returns (instance, remaining, wasExplicit). If no name is recognized,
// returns (defaultName, text, false).
func ParseInstancePrefix(text string, knownNames []string, defaultName string) (string, string, bool) {
	lookup := make(map[string]string, len(knownNames))
	for _, n := range knownNames {
		lookup[strings.ToLower(n)] = n
	}

	if idx := strings.IndexAny(text, ":"); idx > 0 {
		candidate := strings.ToLower(strings.TrimSpace(text[:idx]))
		if canonical, ok := lookup[candidate]; ok {
			remainder := strings.TrimLeft(text[idx+1:], " ")
			return canonical, remainder, true
		}
	}

	if strings.HasPrefix(text, "@") {
		rest := text[1:]
		for lowerName, canonical := range lookup {
			if strings.HasPrefix(strings.ToLower(rest), lowerName) {
				remainder := strings.TrimLeft(rest[len(lowerName):], " ")
				return canonical, remainder, true
			}
		}
	}

	if m := heyHiRE.FindStringSubmatch(text); m != nil {
		candidate := strings.ToLower(m[2])
		if canonical, ok := lookup[candidate]; ok {
			remainder := text[len(m[0]):]
			return canonical, remainder, true
		}
	}

	return defaultName, text, false
}

// SummonDedup wraps internal/cache.DedupeCache directly, TTL-free and
// capacity-bounded, exactly as cache.MessageDedupeKey backs channel dedup
// today — used here to ensure at most one summon executes per
// "summon:<instance>:<msg_ts>" key.
type SummonDedup struct {
	cache *cache.DedupeCache
}

// NewSummonDedup creates a summon-dedup cache bounded at capacity entries.
func NewSummonDedup(capacity int) *SummonDedup {
	return &SummonDedup{cache: cache.NewDedupeCache(cache.DedupeCacheOptions{MaxSize: capacity})}
}

// Seen reports whether this dedup key was already observed, recording it
// either way.
func (s *SummonDedup) Seen(key string) bool {
	return s.cache.Check(key)
}

// Dispatcher implements the classification table in §4.3 as an ordered
// chain of matcher functions, first match wins, grounded on
// internal/channels/slack.Adapter.handleMessage's DM/mention/thread-reply
// gating logic and generalized here to the full table.
type Dispatcher struct {
	instances   *InstanceRegistry
	threadOwner *ThreadOwnerMap
	summonDedup *SummonDedup
}

// NewDispatcher builds a dispatcher bound to the instance registry and
// thread-ownership map it routes against.
func NewDispatcher(instances *InstanceRegistry, threadOwner *ThreadOwnerMap, summonCapacity int) *Dispatcher {
	return &Dispatcher{
		instances:   instances,
		threadOwner: threadOwner,
		summonDedup: NewSummonDedup(summonCapacity),
	}
}

// InboundMessage is the normalized shape of a Slack "message"/"app_mention"
// event the dispatcher classifies. Reaction, file, and topic fields are
// populated only when relevant.
type InboundMessage struct {
	Channel       string
	ThreadTS      string
	MessageTS     string
	User          string
	Text          string
	IsDM          bool
	IsMention     bool
	IsBotMessage  bool
	Files         []InboundFile
	Reaction      string // reaction name, when this event is a reaction
	ReactionOnTS  string // the message ts the reaction landed on
	IsOwnStatusTS bool   // reaction target is the active status message
	Topic         TopicDirectives
}

// InboundFile describes one file attached to a message, prior to download.
type InboundFile struct {
	Name string
	Size int64
	URL  string
}

// Classify routes one inbound message per the §4.3 table, first match
// wins.
func (d *Dispatcher) Classify(msg InboundMessage) Classification {
	conversationID := d.conversationID(msg)

	if msg.Reaction != "" {
		if inst, ok := d.instances.Get(msg.Reaction); ok {
			key := SummonConversationID(inst.Name, msg.ReactionOnTS)
			if d.summonDedup.Seen(key) {
				return Classification{Kind: ClassIgnore}
			}
			return Classification{
				Kind:           ClassSummon,
				Instance:       inst.Name,
				ConversationID: key,
				DedupKey:       key,
			}
		}
		if msg.Reaction == "arrows_counterclockwise" {
			return Classification{Kind: ClassRegenerate, ConversationID: conversationID}
		}
		if msg.Reaction == "x" && msg.IsOwnStatusTS {
			return Classification{Kind: ClassCancel, ConversationID: conversationID}
		}
		return Classification{Kind: ClassIgnore}
	}

	if len(msg.Files) > 0 {
		return Classification{
			Kind:           ClassFileShare,
			ConversationID: conversationID,
			Prompt:         msg.Text,
		}
	}

	if msg.Topic.Roundtable {
		if _, _, explicit := d.parsePrefix(msg.Text); !explicit {
			return Classification{Kind: ClassRoundtable, ConversationID: conversationID, Prompt: msg.Text}
		}
	}

	if msg.Topic.ForcedInstance != "" {
		if inst, ok := d.instances.Get(msg.Topic.ForcedInstance); ok {
			return Classification{Kind: ClassDirected, Instance: inst.Name, ConversationID: conversationID, Prompt: msg.Text}
		}
	}

	if inst, remaining, explicit := d.parsePrefix(msg.Text); explicit {
		return Classification{Kind: ClassExplicit, Instance: inst, ConversationID: conversationID, Prompt: remaining, WasExplicit: true}
	}

	if owner, ok := d.threadOwner.Get(conversationID); ok && owner != RoundtableSentinel {
		return Classification{Kind: ClassFollowUp, Instance: owner, ConversationID: conversationID, Prompt: msg.Text}
	}

	if msg.Topic.DefaultInstance != "" {
		if inst, ok := d.instances.Get(msg.Topic.DefaultInstance); ok {
			return Classification{Kind: ClassDefault, Instance: inst.Name, ConversationID: conversationID, Prompt: msg.Text}
		}
	}

	if msg.IsMention || msg.IsDM {
		inst, remaining, _ := d.parsePrefix(msg.Text)
		return Classification{Kind: ClassMention, Instance: inst, ConversationID: conversationID, Prompt: remaining}
	}

	return Classification{Kind: ClassIgnore}
}

func (d *Dispatcher) parsePrefix(text string) (string, string, bool) {
	def := ""
	if inst, ok := d.instances.Default(); ok {
		def = inst.Name
	}
	return ParseInstancePrefix(text, d.instances.Names(), def)
}

func (d *Dispatcher) conversationID(msg InboundMessage) string {
	if msg.IsDM {
		return DMConversationID(msg.User)
	}
	threadTS := msg.ThreadTS
	if threadTS == "" {
		threadTS = msg.MessageTS
	}
	return ChannelThreadID(msg.Channel, threadTS)
}

// SummonPreamble builds the preamble text for a summon execution per
// §4.3's literal: "[<user> summoned you by reacting with :<name>: to this
// message in #<channel>]".
func SummonPreamble(user, reactionName, channel, messageText string) string {
	return "[" + user + " summoned you by reacting with :" + reactionName + ": to this message in #" + channel + "]\n" + messageText
}
