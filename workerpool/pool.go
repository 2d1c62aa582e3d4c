// Package workerpool implements the typed request/response bridge in
// front of the core's background workers (spec §4.10): embedding,
// chunking, vector search, web-page fetching, and the advanced-RAG
// pipeline variant. Each worker is a single goroutine pulling off its
// own queue; the bridge tracks pending requests by id so progress and
// terminal responses can be routed back to the original caller.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// requestTimeout is the per-request deadline after which a pending
// request is rejected if no terminal response has arrived (spec §4.10).
const requestTimeout = 10 * time.Minute

var (
	// ErrWorkerTerminated is returned to every pending request on a
	// worker when Terminate is called for that worker.
	ErrWorkerTerminated = errors.New("workerpool: worker terminated")

	// ErrWorkerTimeout is returned when a request's 10-minute deadline
	// elapses with no terminal response.
	ErrWorkerTimeout = errors.New("workerpool: request timed out")

	// ErrUnknownWorker is returned by Submit for a worker name with no
	// registered handler.
	ErrUnknownWorker = errors.New("workerpool: unknown worker")
)

// ProgressFunc reports incremental progress for a single request.
type ProgressFunc func(pct int, message string)

// Request is one unit of work submitted to a worker.
type Request struct {
	ID      string
	Type    string
	Payload any
}

// Handler executes a Request. Calling progress zero or more times before
// returning reports intermediate status; the return value is the
// terminal {success,payload} or {error,message} response (spec §4.10).
// A Handler may return a FatalError to signal that the worker itself is
// unusable, rejecting every other request still pending on it.
type Handler func(ctx context.Context, req Request, progress ProgressFunc) (any, error)

// FatalError wraps a Handler error to signal the worker process is
// unusable: the pool rejects every other pending request on that worker
// (spec §4.10's "onerror" behavior) instead of just this one.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("workerpool: fatal worker error: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

type pendingRequest struct {
	progress ProgressFunc
	done     chan result
}

type result struct {
	payload any
	err     error
}

type worker struct {
	name    string
	handler Handler
	queue   chan Request
	stop    chan struct{}
}

// Pool is the process-wide registry of background workers (spec §4.10).
// Construct one with New and share it; New starts no workers, and each
// worker starts when RegisterWorker is first called for its name.
type Pool struct {
	mu      sync.Mutex
	workers map[string]*worker
	pending map[string]map[string]*pendingRequest // worker name -> request id -> pending
}

// New returns an empty Pool. Call RegisterWorker for each of the roles
// the caller intends to use (embedding, chunking, vectorsearch,
// webfetch, advancedrag) before the first Submit.
func New() *Pool {
	return &Pool{
		workers: make(map[string]*worker),
		pending: make(map[string]map[string]*pendingRequest),
	}
}

// RegisterWorker starts a named worker backed by handler. Calling
// it again for an already-running name replaces the handler for future
// requests without disturbing in-flight ones.
func (p *Pool) RegisterWorker(name string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[name]; ok {
		w.handler = handler
		return
	}

	w := &worker{
		name:    name,
		handler: handler,
		queue:   make(chan Request, 16),
		stop:    make(chan struct{}),
	}
	p.workers[name] = w
	p.pending[name] = make(map[string]*pendingRequest)
	go p.run(w)
}

func (p *Pool) run(w *worker) {
	slog.Debug("workerpool: worker started", "worker", w.name)
	for {
		select {
		case req, ok := <-w.queue:
			if !ok {
				return
			}
			p.process(w, req)
		case <-w.stop:
			return
		}
	}
}

func (p *Pool) process(w *worker, req Request) {
	progress := func(pct int, message string) {
		p.mu.Lock()
		pending, ok := p.pending[w.name][req.ID]
		p.mu.Unlock()
		if ok && pending.progress != nil {
			pending.progress(pct, message)
		}
	}

	payload, err := func() (payload any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &FatalError{Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		return w.handler(context.Background(), req, progress)
	}()

	var fatal *FatalError
	if errors.As(err, &fatal) {
		slog.Error("workerpool: worker reported fatal error", "worker", w.name, "error", fatal.Err)
		p.rejectAll(w.name, fatal)
		return
	}

	p.resolve(w.name, req.ID, result{payload: payload, err: err})
}

func (p *Pool) resolve(workerName, id string, res result) {
	p.mu.Lock()
	pending, ok := p.pending[workerName][id]
	if ok {
		delete(p.pending[workerName], id)
	}
	p.mu.Unlock()
	if ok {
		pending.done <- res
	}
}

func (p *Pool) rejectAll(workerName string, err error) {
	p.mu.Lock()
	pendings := p.pending[workerName]
	p.pending[workerName] = make(map[string]*pendingRequest)
	p.mu.Unlock()

	for _, pending := range pendings {
		pending.done <- result{err: err}
	}
}

// Submit sends reqType/payload to workerName's handler and blocks until
// a terminal response arrives, ctx is cancelled, or the 10-minute
// request timeout elapses. onProgress may be nil.
func (p *Pool) Submit(ctx context.Context, workerName, reqType string, payload any, onProgress ProgressFunc) (any, error) {
	p.mu.Lock()
	w, ok := p.workers[workerName]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerName)
	}

	id := uuid.NewString()
	pending := &pendingRequest{progress: onProgress, done: make(chan result, 1)}
	p.pending[workerName][id] = pending
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	select {
	case w.queue <- Request{ID: id, Type: reqType, Payload: payload}:
	case <-ctx.Done():
		p.removePending(workerName, id)
		return nil, p.timeoutOrCancelled(ctx)
	}

	select {
	case res := <-pending.done:
		return res.payload, res.err
	case <-ctx.Done():
		p.removePending(workerName, id)
		return nil, p.timeoutOrCancelled(ctx)
	}
}

func (p *Pool) timeoutOrCancelled(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrWorkerTimeout
	}
	return ctx.Err()
}

func (p *Pool) removePending(workerName, id string) {
	p.mu.Lock()
	delete(p.pending[workerName], id)
	p.mu.Unlock()
}

// Terminate revokes every pending request on workerName with
// ErrWorkerTerminated and stops its goroutine (spec §4.10).
func (p *Pool) Terminate(workerName string) {
	p.mu.Lock()
	w, ok := p.workers[workerName]
	if ok {
		delete(p.workers, workerName)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	p.rejectAll(workerName, ErrWorkerTerminated)
	close(w.stop)
}

// TerminateAll shuts down every registered worker.
func (p *Pool) TerminateAll() {
	p.mu.Lock()
	names := make([]string, 0, len(p.workers))
	for name := range p.workers {
		names = append(names, name)
	}
	p.mu.Unlock()

	for _, name := range names {
		p.Terminate(name)
	}
}
