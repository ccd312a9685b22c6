package convcore

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func textOnlyProviderResolver(text string) ProviderResolver {
	return func(instance string) (LLMProvider, error) {
		return &fakeProvider{responses: []fakeResponse{{text: text}}}, nil
	}
}

func TestRegistryExecuteRunsAndAppendsTranscript(t *testing.T) {
	transcripts := NewTranscriptStore(t.TempDir())
	r := NewRegistry(nil, transcripts, time.Second, textOnlyProviderResolver("hi there"), nil, nil, nil)

	out, err := r.Execute(context.Background(), "nova", "conv1", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hi there" {
		t.Errorf("got %q", out)
	}

	records, err := transcripts.Replay("nova", "conv1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (user prompt + assistant reply)", len(records))
	}
	if records[0].Role != "user" || records[0].Content != "hello" {
		t.Errorf("got %+v", records[0])
	}
	if records[1].Role != "assistant" || records[1].Content != "hi there" {
		t.Errorf("got %+v", records[1])
	}
}

func TestRegistryNotifyDropsWhenNoActiveExecution(t *testing.T) {
	r := NewRegistry(nil, nil, time.Second, textOnlyProviderResolver("hi"), nil, nil, nil)

	// No execution has run yet for this conversation, so no session exists.
	if r.Notify("nova", "conv1", "extra") {
		t.Error("expected Notify to report false with no session at all")
	}
}

func TestRegistryNotifyDropsAfterExecutionCompletes(t *testing.T) {
	r := NewRegistry(nil, nil, time.Second, textOnlyProviderResolver("hi"), nil, nil, nil)

	if _, err := r.Execute(context.Background(), "nova", "conv1", "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The session now exists but is no longer active (Execute returned).
	if r.Notify("nova", "conv1", "extra") {
		t.Error("expected Notify to drop once the execution has already completed")
	}
}

func TestRegistrySessionKeyIsolatesInstancesAndConversations(t *testing.T) {
	transcripts := NewTranscriptStore(t.TempDir())
	r := NewRegistry(nil, transcripts, time.Second, textOnlyProviderResolver("reply"), nil, nil, nil)

	r.Execute(context.Background(), "nova", "conv1", "a", nil)
	r.Execute(context.Background(), "echo", "conv1", "b", nil)
	r.Execute(context.Background(), "nova", "conv2", "c", nil)

	novaConv1, _ := transcripts.Replay("nova", "conv1")
	echoConv1, _ := transcripts.Replay("echo", "conv1")
	novaConv2, _ := transcripts.Replay("nova", "conv2")

	if len(novaConv1) == 0 || len(echoConv1) == 0 || len(novaConv2) == 0 {
		t.Fatal("expected each (instance, conversation) pair to have its own transcript")
	}
	if novaConv1[0].Content != "a" || echoConv1[0].Content != "b" || novaConv2[0].Content != "c" {
		t.Errorf("got %+v / %+v / %+v", novaConv1, echoConv1, novaConv2)
	}
}

func TestRegistryExecuteRecordsMetrics(t *testing.T) {
	metrics := newTestMetrics()
	r := NewRegistry(nil, nil, time.Second, textOnlyProviderResolver("done"), nil, nil, metrics)

	if _, err := r.Execute(context.Background(), "nova", "conv1", "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := testutil.ToFloat64(metrics.Executions.WithLabelValues("nova", "ok"))
	if count != 1 {
		t.Errorf("got execution count %v, want 1", count)
	}
}

func TestRegistryCancelStopsInFlightExecution(t *testing.T) {
	r := NewRegistry(nil, nil, time.Second, func(instance string) (LLMProvider, error) {
		return &blockingProvider{}, nil
	}, nil, nil, nil)

	done := make(chan struct{})
	go func() {
		r.Execute(context.Background(), "nova", "conv1", "hello", nil)
		close(done)
	}()

	// Give the goroutine a moment to register as active, then cancel it.
	deadline := time.Now().Add(time.Second)
	for {
		if r.Cancel("nova", "conv1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected Cancel to eventually find an active execution")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected execution to stop after Cancel")
	}
}

func TestRegistryCancelUnknownSessionReportsFalse(t *testing.T) {
	r := NewRegistry(nil, nil, time.Second, textOnlyProviderResolver("hi"), nil, nil, nil)
	if r.Cancel("nova", "never-started") {
		t.Error("expected Cancel to report false for an unknown session")
	}
}

// blockingProvider blocks Complete until the context is cancelled, to
// exercise Registry.Cancel.
type blockingProvider struct{}

func (b *blockingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	ch := make(chan *CompletionChunk)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *blockingProvider) Name() string        { return "blocking" }
func (b *blockingProvider) Models() []Model     { return nil }
func (b *blockingProvider) SupportsTools() bool { return false }
