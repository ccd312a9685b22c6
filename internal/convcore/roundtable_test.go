package convcore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a Metrics instance with unregistered vectors, so
// tests can exercise counters without colliding on Prometheus's default
// registry (which NewMetrics registers against, and which panics on a
// second registration within the same test binary).
func newTestMetrics() *Metrics {
	return &Metrics{
		Executions:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_convcore_executions_total"}, []string{"instance", "outcome"}),
		Injections:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_convcore_injections_total"}, []string{"instance"}),
		ForceResponds:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_convcore_force_responds_total"}, []string{"instance", "tool"}),
		RoundtablePosts:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_convcore_roundtable_posts_total"}, []string{"instance"}),
		ActiveExecutions: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_convcore_active_executions"}, []string{"instance"}),
	}
}

func TestIsPass(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"[PASS]", true},
		{"[pass]", true},
		{"  [Pass]  ", true},
		{"[PASS] nothing to add", true},
		{"I disagree with [PASS] usage here", false},
		{"", false},
		{"[PAS]", false},
	}
	for _, c := range cases {
		if got := isPass(c.text); got != c.want {
			t.Errorf("isPass(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestRoundtableWrapPromptExcludesSelf(t *testing.T) {
	r := &Roundtable{}
	out := r.wrapPrompt("what do you think?", "nova", []string{"nova", "echo", "sage"})

	if strings.Contains(out, "your response will be shown alongside nova") {
		t.Error("expected self to be excluded from the 'alongside' list")
	}
	if !strings.Contains(out, "echo, sage") {
		t.Errorf("expected other instances listed, got %q", out)
	}
	if !strings.HasSuffix(out, "what do you think?") {
		t.Errorf("expected original user text preserved at the end, got %q", out)
	}
}

func TestRoundtableRunFiltersErrorsAndPasses(t *testing.T) {
	instances := testInstances()
	owners := NewThreadOwnerMap(10)

	exec := func(ctx context.Context, instance, conversationID, prompt string) (string, error) {
		switch instance {
		case "nova":
			return "nova's real answer", nil
		case "echo":
			return "", errors.New("boom")
		}
		return "[PASS]", nil
	}

	var posted []string
	post := func(ctx context.Context, instance, conversationID, text string) error {
		posted = append(posted, instance)
		return nil
	}

	rt := NewRoundtable(instances, owners, exec, post, nil)
	survivors, err := rt.Run(context.Background(), "conv1", "what do you all think")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(survivors) != 1 || survivors[0].Instance != "nova" {
		t.Errorf("got survivors %+v", survivors)
	}
	if len(posted) != 1 || posted[0] != "nova" {
		t.Errorf("got posted %v", posted)
	}
	if !owners.IsRoundtable("conv1") {
		t.Error("expected thread ownership set to the roundtable sentinel")
	}
}

func TestRoundtableRunRecordsMetrics(t *testing.T) {
	instances := NewInstanceRegistry([]InstanceConfig{{Name: "nova", DefaultEnabled: true}}, "")
	owners := NewThreadOwnerMap(10)

	exec := func(ctx context.Context, instance, conversationID, prompt string) (string, error) {
		return "an answer", nil
	}
	post := func(ctx context.Context, instance, conversationID, text string) error {
		return nil
	}

	metrics := newTestMetrics()
	rt := NewRoundtable(instances, owners, exec, post, metrics)
	if _, err := rt.Run(context.Background(), "conv1", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := testutil.ToFloat64(metrics.RoundtablePosts.WithLabelValues("nova"))
	if count != 1 {
		t.Errorf("got roundtable post count %v, want 1", count)
	}
}
