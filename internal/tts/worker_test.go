package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
)

type countingEngine struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
	delay   time.Duration
	release chan struct{}
	panics  bool
}

func (e *countingEngine) Load(context.Context) error { return nil }
func (e *countingEngine) Voices() []string           { return []string{"M1"} }
func (e *countingEngine) SampleRate() int            { return 8000 }

func (e *countingEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if e.panics {
		panic("boom")
	}
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		seen := e.maxSeen.Load()
		if n <= seen || e.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if e.release != nil {
		<-e.release
	}
	time.Sleep(e.delay)
	e.calls.Add(1)
	if ctx.Err() != nil {
		return Audio{}, ctx.Err()
	}
	return Audio{PCM: []byte(req.Text), Rate: 8000}, nil
}

func TestWorkerSerializesCallers(t *testing.T) {
	engine := &countingEngine{delay: 5 * time.Millisecond}
	w := NewWorker(engine, 0, newLogger())
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			audio, err := w.Submit(context.Background(), Request{Text: "abcd"})
			if err != nil || string(audio.PCM) != "abcd" {
				t.Errorf("unexpected result %q %v", audio.PCM, err)
			}
		}()
	}
	wg.Wait()

	if got := engine.maxSeen.Load(); got != 1 {
		t.Fatalf("engine ran %d jobs concurrently", got)
	}
	if got := engine.calls.Load(); got != 8 {
		t.Fatalf("expected 8 calls, got %d", got)
	}
}

func TestWorkerJobOutlivesCallerContext(t *testing.T) {
	engine := &countingEngine{release: make(chan struct{})}
	w := NewWorker(engine, 0, newLogger())
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx, Request{Text: "x"})
		errs <- err
	}()

	deadline := time.Now().Add(time.Second)
	for engine.active.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(engine.release)

	// The next job only runs after the abandoned one completed.
	audio, err := w.Submit(context.Background(), Request{Text: "y"})
	if err != nil || string(audio.PCM) != "y" {
		t.Fatalf("unexpected result %q %v", audio.PCM, err)
	}
	if got := engine.calls.Load(); got != 2 {
		t.Fatalf("expected abandoned job to complete, calls=%d", got)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	w := NewWorker(&countingEngine{panics: true}, 0, newLogger())
	defer w.Close()
	if _, err := w.Submit(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected error from panicking engine")
	}
}

func TestWorkerClosed(t *testing.T) {
	w := NewWorker(&countingEngine{}, 0, newLogger())
	w.Close()
	w.Close()
	if _, err := w.Submit(context.Background(), Request{Text: "x"}); !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}

type deadlineEngine struct {
	countingEngine
	hasDeadline atomic.Bool
}

func (e *deadlineEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	_, ok := ctx.Deadline()
	e.hasDeadline.Store(ok)
	return e.countingEngine.Synthesize(ctx, req)
}

func TestDefaultTimeoutLetsSynthesisFinish(t *testing.T) {
	timeout := time.Duration(config.Default().Engine.TimeoutMS) * time.Millisecond
	engine := &deadlineEngine{countingEngine: countingEngine{delay: 20 * time.Millisecond}}
	w := NewWorker(engine, timeout, newLogger())
	defer w.Close()

	if _, err := w.Submit(context.Background(), Request{Text: "slow"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if engine.hasDeadline.Load() {
		t.Fatal("engine context must carry no deadline by default")
	}
}

func TestConfiguredTimeoutBoundsSynthesis(t *testing.T) {
	engine := &countingEngine{delay: 50 * time.Millisecond}
	w := NewWorker(engine, 5*time.Millisecond, newLogger())
	defer w.Close()

	if _, err := w.Submit(context.Background(), Request{Text: "slow"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
