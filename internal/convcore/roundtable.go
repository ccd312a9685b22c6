package convcore

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// roundtablePostDelay is the pause between sequential persona posts, per
// §4.5 step 4: Slack's per-channel post rate is 1/s; the extra half-second
// gives headroom and visual pacing.
const roundtablePostDelay = 1500 * time.Millisecond

// RoundtableResult is one instance's answer in a roundtable round, prior to
// [PASS] filtering.
type RoundtableResult struct {
	Instance string
	Text     string
	Err      error
}

// RoundtableExecFunc runs one instance's execution for the roundtable,
// matching Session Registry.execute's shape narrowed to a single call.
type RoundtableExecFunc func(ctx context.Context, instance, conversationID, prompt string) (string, error)

// RoundtablePoster posts one surviving response to the thread under its
// originating instance's persona.
type RoundtablePoster func(ctx context.Context, instance, conversationID, text string) error

// Roundtable fans out an unaddressed message to every configured instance
// in parallel, filters [PASS] responses, and posts survivors sequentially.
// Entered only for unaddressed messages in [mode:roundtable] channels, per
// §4.5.
type Roundtable struct {
	instances   *InstanceRegistry
	threadOwner *ThreadOwnerMap
	exec        RoundtableExecFunc
	post        RoundtablePoster
	metrics     *Metrics
}

// NewRoundtable builds a roundtable executor bound to the instance
// registry, thread-owner map, and the execute/post callbacks supplied by
// the caller (typically the Session Registry and the Slack adapter).
// metrics may be nil.
func NewRoundtable(instances *InstanceRegistry, threadOwner *ThreadOwnerMap, exec RoundtableExecFunc, post RoundtablePoster, metrics *Metrics) *Roundtable {
	return &Roundtable{instances: instances, threadOwner: threadOwner, exec: exec, post: post, metrics: metrics}
}

// Run executes the six-step roundtable algorithm in §4.5 and marks thread
// ownership sticky to RoundtableSentinel on completion (step 5), so
// subsequent unaddressed messages trigger another round while explicit
// addressing still routes to a single instance.
func (r *Roundtable) Run(ctx context.Context, conversationID, userText string) ([]RoundtableResult, error) {
	names := r.instances.Names()

	// Step 2: fan out in parallel. errgroup.Group.Go WITHOUT WithContext,
	// since a tool/provider error in one instance must not cancel the
	// others (step 3: "errors are logged and dropped").
	var g errgroup.Group
	results := make([]RoundtableResult, len(names))
	for i, name := range names {
		i, name := i, name
		prompt := r.wrapPrompt(userText, name, names)
		g.Go(func() error {
			text, err := r.exec(ctx, name, conversationID, prompt)
			results[i] = RoundtableResult{Instance: name, Text: text, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	// Step 3: collect, drop errored and [PASS] responses.
	survivors := make([]RoundtableResult, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if isPass(res.Text) {
			continue
		}
		survivors = append(survivors, res)
	}

	// Step 4: post survivors sequentially, paced.
	for i, res := range survivors {
		if err := r.post(ctx, res.Instance, conversationID, res.Text); err != nil {
			continue
		}
		if r.metrics != nil {
			r.metrics.RoundtablePosts.WithLabelValues(res.Instance).Inc()
		}
		if i < len(survivors)-1 {
			select {
			case <-ctx.Done():
				break
			case <-time.After(roundtablePostDelay):
			}
		}
	}

	// Step 5: mark ownership sticky.
	r.threadOwner.Set(conversationID, RoundtableSentinel)

	return survivors, nil
}

// isPass reports whether a roundtable response's trimmed text begins
// (case-insensitively) with the literal "[PASS]" token.
func isPass(text string) bool {
	trimmed := strings.TrimSpace(text)
	return len(trimmed) >= len("[PASS]") && strings.EqualFold(trimmed[:len("[PASS]")], "[PASS]")
}

// wrapPrompt builds the roundtable preamble per §4.5 step 2: states this is
// roundtable mode, names the other instances, and instructs the instance to
// reply with the exact literal [PASS] if it has nothing unique to add.
func (r *Roundtable) wrapPrompt(userText, self string, names []string) string {
	var b strings.Builder
	b.WriteString("[This is a roundtable: your response will be shown alongside ")
	others := make([]string, 0, len(names))
	for _, n := range names {
		if n == self {
			continue
		}
		others = append(others, n)
	}
	b.WriteString(strings.Join(others, ", "))
	b.WriteString(". Reply with the exact text [PASS] if you have nothing unique to add.]\n")
	b.WriteString(userText)
	return b.String()
}
