package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type jobKind string

const (
	jobLogin   jobKind = "login"
	jobLogout  jobKind = "logout"
	jobReload  jobKind = "reload"
	jobSync    jobKind = "sync"
	jobBarrier jobKind = "barrier"
)

type queuedJob struct {
	kind jobKind
	run  func(ctx context.Context)
}

// worker runs cart jobs one at a time in submission order. The queue is
// unbounded so that producers, which may hold other locks, never block.
type worker struct {
	timeout time.Duration
	log     *slog.Logger

	mu          sync.Mutex
	pending     []queuedJob
	syncPending bool
	closed      bool

	wake    chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func newWorker(timeout time.Duration, log *slog.Logger) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		timeout: timeout,
		log:     log,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go w.workerLoop()
	return w
}

func (w *worker) enqueue(kind jobKind, run func(ctx context.Context)) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, queuedJob{kind: kind, run: run})
	w.mu.Unlock()

	w.signal()
	return true
}

// enqueueOnce queues a job of kind unless one is already waiting. Sync jobs
// push whatever the cart holds when they run, so one waiting job covers
// every change made before it starts.
func (w *worker) enqueueOnce(kind jobKind, run func(ctx context.Context)) {
	w.mu.Lock()
	if w.closed || w.syncPending {
		w.mu.Unlock()
		return
	}
	w.syncPending = true
	w.pending = append(w.pending, queuedJob{kind: kind, run: run})
	w.mu.Unlock()

	w.signal()
}

// barrier waits for the jobs queued so far.
func (w *worker) barrier(ctx context.Context) error {
	done := make(chan struct{})
	if !w.enqueue(jobBarrier, func(context.Context) { close(done) }) {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains the queue and stops the loop.
func (w *worker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.stopped
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.signal()
	<-w.stopped
	w.cancel()
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) workerLoop() {
	defer close(w.stopped)

	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}

		next := w.pending[0]
		w.pending[0] = queuedJob{}
		w.pending = w.pending[1:]
		if next.kind == jobSync {
			w.syncPending = false
		}
		w.mu.Unlock()

		w.process(next)
	}
}

func (w *worker) process(job queuedJob) {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error("cart job panicked", "job", job.kind, "panic", rec)
		}
	}()

	job.run(ctx)
}
