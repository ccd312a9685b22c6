// Package onboarding implements the per-user progressive-disclosure state
// machine described in spec §4.8: a welcome DM on first contact, then a
// capped sequence of one-time response suffixes as the user's first few
// threads unfold.
package onboarding

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// State is the per-user progressive-disclosure record, persisted as
// <state-dir>/users/<user_id>/onboarding.json.
type State struct {
	UserID               string     `json:"user_id"`
	FirstSeen            time.Time  `json:"first_seen"`
	Welcomed             bool       `json:"welcomed"`
	ThreadsStarted       int        `json:"threads_started"`
	RecentThreadIDs      []string   `json:"recent_thread_ids"`
	CrossThreadNoteShown int        `json:"cross_thread_notes_shown"`
	FooterShown          bool       `json:"footer_shown"`
	MidExecTipShown      bool       `json:"mid_exec_tip_shown"`
	RegenerateTipShown   bool       `json:"regenerate_tip_shown"`
	FileUploadTipShown   bool       `json:"file_upload_tip_shown"`
}

const maxRecentThreads = 10
const maxCrossThreadNotes = 3
const footerThreadLimit = 3

// welcomeText is posted once, via DM, on a user's first-ever message.
const welcomeText = "Hi! I'm here whenever you need me — just mention me or message me directly."

// Decision is the outcome of Observe: the suffix (if any) to append to the
// bot's response for this turn, and whether a welcome DM should be sent
// first.
type Decision struct {
	SendWelcome bool
	WelcomeText string
	Suffix      string
}

var crossThreadPhraseRE = regexp.MustCompile(`(?i)(as i mentioned|remember when|you said|like i said|earlier i)`)

// Tracker loads, mutates, and persists onboarding state per user. Adapted
// from internal/diagnostics/cache_trace.go's lazy-directory-then-write
// pattern, but read-modify-write over a whole JSON file rather than
// append-only JSONL, since onboarding state is small and mutated in place.
type Tracker struct {
	stateDir string

	mu    sync.Mutex
	cache map[string]*State
}

// NewTracker creates a tracker rooted at stateDir (typically
// "<state-dir>/users").
func NewTracker(stateDir string) *Tracker {
	return &Tracker{stateDir: stateDir, cache: make(map[string]*State)}
}

func (t *Tracker) path(userID string) string {
	return filepath.Join(t.stateDir, "users", userID, "onboarding.json")
}

// load returns the cached state for a user, reading it from disk on first
// access. A missing file is not an error: it yields a fresh zero-value
// state for a never-before-seen user.
func (t *Tracker) load(userID string) *State {
	if s, ok := t.cache[userID]; ok {
		return s
	}

	s := &State{UserID: userID}
	data, err := os.ReadFile(t.path(userID))
	if err == nil {
		_ = json.Unmarshal(data, s)
	}
	t.cache[userID] = s
	return s
}

// persist writes the user's state to disk, creating its directory lazily.
// Best-effort per §4.8 step 4: a write failure is swallowed, not raised.
func (t *Tracker) persist(s *State) {
	path := t.path(s.UserID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}

// PersistAsync writes the user's current state in a background goroutine,
// matching §4.8 step 4's "persist asynchronously (best effort)".
func (t *Tracker) PersistAsync(userID string) {
	t.mu.Lock()
	s := t.load(userID)
	snapshot := *s
	snapshot.RecentThreadIDs = append([]string{}, s.RecentThreadIDs...)
	t.mu.Unlock()
	go t.persist(&snapshot)
}

// Observe runs the full §4.8 state machine for one inbound message and
// returns the decision for this turn. messageText and execDuration are used
// only to pick among the suffix candidates in step 3; threadID identifies
// whether this message opens a new thread for the user.
func (t *Tracker) Observe(userID, threadID, messageText string, execDuration time.Duration) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.load(userID)
	var decision Decision

	// Step 1: welcome on first-ever contact.
	if !s.Welcomed {
		s.FirstSeen = time.Now()
		s.Welcomed = true
		decision.SendWelcome = true
		decision.WelcomeText = welcomeText
	}

	// Step 2: new-thread detection.
	isNewThread := !contains(s.RecentThreadIDs, threadID)
	if isNewThread {
		s.ThreadsStarted++
		s.RecentThreadIDs = append(s.RecentThreadIDs, threadID)
		if len(s.RecentThreadIDs) > maxRecentThreads {
			s.RecentThreadIDs = s.RecentThreadIDs[len(s.RecentThreadIDs)-maxRecentThreads:]
		}
	}

	footerPhaseOver := s.ThreadsStarted > footerThreadLimit || s.FooterShown

	// Step 3: suffix priority, first match wins.
	switch {
	case isNewThread && s.CrossThreadNoteShown < maxCrossThreadNotes && crossThreadPhraseRE.MatchString(messageText):
		s.CrossThreadNoteShown++
		decision.Suffix = "(fyi: I don't automatically recall earlier threads — feel free to remind me of context.)"

	case s.ThreadsStarted <= footerThreadLimit && isNewThread:
		s.FooterShown = true
		decision.Suffix = "(new thread, fresh start — I won't carry over context from other threads.)"

	case footerPhaseOver && execDuration > 20*time.Second && !s.MidExecTipShown:
		s.MidExecTipShown = true
		decision.Suffix = "(tip: you can send me another message while I'm working and I'll fold it in.)"

	case footerPhaseOver && isNewThread && s.MidExecTipShown && !s.RegenerateTipShown:
		s.RegenerateTipShown = true
		decision.Suffix = "(tip: react with 🔄 to have me try that again.)"

	case footerPhaseOver && isNewThread && s.RegenerateTipShown && !s.FileUploadTipShown:
		s.FileUploadTipShown = true
		decision.Suffix = "(tip: you can share files with me directly in this thread.)"
	}

	go t.persist(cloneState(s))

	return decision
}

func cloneState(s *State) *State {
	out := *s
	out.RecentThreadIDs = append([]string{}, s.RecentThreadIDs...)
	return &out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
