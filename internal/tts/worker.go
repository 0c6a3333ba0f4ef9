package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("tts worker closed")

type job struct {
	ctx    context.Context
	req    Request
	result chan jobResult
}

type jobResult struct {
	audio Audio
	err   error
}

// Worker owns an Engine and runs synthesis jobs one at a time on a single
// goroutine, so every caller in the process shares one engine slot.
type Worker struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger

	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker starts the worker goroutine. timeout bounds each job; zero means
// no limit.
func NewWorker(engine Engine, timeout time.Duration, logger *slog.Logger) *Worker {
	w := &Worker{
		engine:  engine,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "tts-worker")),
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) Voices() []string { return w.engine.Voices() }

func (w *Worker) SampleRate() int { return w.engine.SampleRate() }

// Submit queues req and waits for its audio. If ctx ends first Submit
// returns ctx.Err(), but a job already handed to the engine still runs to
// completion.
func (w *Worker) Submit(ctx context.Context, req Request) (Audio, error) {
	j := job{ctx: ctx, req: req, result: make(chan jobResult, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return Audio{}, ErrWorkerClosed
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	}

	select {
	case res := <-j.result:
		return res.audio, res.err
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	}
}

// Close stops accepting jobs and waits for the running one to finish.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.quit) })
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			audio, err := w.execute(j)
			j.result <- jobResult{audio: audio, err: err}
		}
	}
}

func (w *Worker) execute(j job) (audio Audio, err error) {
	ctx := context.WithoutCancel(j.ctx)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("engine panic", slog.Any("panic", r))
			err = fmt.Errorf("tts engine panic: %v", r)
		}
	}()

	started := time.Now()
	audio, err = w.engine.Synthesize(ctx, j.req)
	w.logger.Debug("synthesis finished",
		slog.Int("chars", len(j.req.Text)),
		slog.Int("pcm_bytes", len(audio.PCM)),
		slog.Duration("elapsed", time.Since(started)))
	return audio, err
}
