// Package loop provides the engine's single-threaded task loop.
//
// Every engine and inspector call runs on the goroutine that called Run.
// Other goroutines only hand it closures, on one of two queues. Commands
// (Post, Call) come from the frontend and control code. Page work (Schedule,
// CallScheduled, AfterFunc) comes from timers and network completions. A
// script debugger suspends the program by calling RunNested from inside a
// task; a nested loop serves commands only, so page work waits until the
// program resumes.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Loop errors.
var (
	// ErrStopped indicates the loop no longer accepts tasks.
	ErrStopped = errors.New("loop stopped")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("loop already running")

	// ErrNotRunning indicates RunNested was called outside Run.
	ErrNotRunning = errors.New("loop not running")
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// PanicHandler is called when a task panics.
type PanicHandler func(r any, stack []byte)

// Loop serializes tasks onto one goroutine.
type Loop struct {
	tasks    chan Task
	page     chan Task
	done     chan struct{}
	stopOnce sync.Once

	running atomic.Bool
	ctx     context.Context
	depth   int

	logger       *zap.Logger
	panicHandler PanicHandler

	posted    atomic.Uint64
	processed atomic.Uint64
	panicked  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the size of each task queue.
func WithQueueSize(size int) Option {
	return func(l *Loop) {
		if size > 0 {
			l.tasks = make(chan Task, size)
			l.page = make(chan Task, size)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPanicHandler replaces the default panic handler, which logs the panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		l.panicHandler = h
	}
}

// New creates a loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		tasks:  make(chan Task, 1024),
		page:   make(chan Task, 1024),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.panicHandler == nil {
		l.panicHandler = func(r any, stack []byte) {
			l.logger.Error("task panicked", zap.Any("panic", r), zap.ByteString("stack", stack))
		}
	}
	return l
}

// Post queues the command t. Commands also run while the program is
// suspended in a nested loop. It is safe to call from any goroutine and
// blocks while the queue is full.
func (l *Loop) Post(t Task) error {
	return l.enqueue(l.tasks, t)
}

// Schedule queues page work. It runs only at the top level of the loop, so
// it is held back while the program is suspended.
func (l *Loop) Schedule(t Task) error {
	return l.enqueue(l.page, t)
}

func (l *Loop) enqueue(q chan Task, t Task) error {
	if t == nil {
		return nil
	}
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case q <- t:
		l.posted.Add(1)
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Call runs fn on the loop as a command and waits for its result. It must
// not be called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	return l.call(ctx, l.tasks, fn)
}

// CallScheduled runs fn on the loop as page work and waits for its result.
// It must not be called from the loop goroutine.
func (l *Loop) CallScheduled(ctx context.Context, fn func() error) error {
	return l.call(ctx, l.page, fn)
}

func (l *Loop) call(ctx context.Context, q chan Task, fn func() error) error {
	result := make(chan error, 1)
	err := l.enqueue(q, func() {
		result <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// AfterFunc schedules fn as page work once d has elapsed. Stopping the
// returned timer before it fires prevents it.
func (l *Loop) AfterFunc(d time.Duration, fn Task) *time.Timer {
	return time.AfterFunc(d, func() {
		if err := l.Schedule(fn); err != nil {
			l.logger.Debug("timer dropped", zap.Error(err))
		}
	})
}

// Run executes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)
	l.ctx = ctx

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case t := <-l.tasks:
			l.execute(t)
		case t := <-l.page:
			l.execute(t)
		}
	}
}

// RunNested executes commands on the current goroutine until until reports
// true. Page work stays queued. It must be called from a task. It returns
// ErrStopped when the loop is stopped or its context is cancelled first.
func (l *Loop) RunNested(until func() bool) error {
	if !l.running.Load() {
		return ErrNotRunning
	}
	l.depth++
	defer func() { l.depth-- }()

	for !until() {
		select {
		case <-l.ctx.Done():
			return ErrStopped
		case <-l.done:
			return ErrStopped
		case t := <-l.tasks:
			l.execute(t)
		}
	}
	return nil
}

// Depth returns the number of active nested loops.
func (l *Loop) Depth() int { return l.depth }

// Stop makes Run and any nested loops return. Queued tasks are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed when the loop is stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) execute(t Task) {
	defer func() {
		l.processed.Add(1)
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.panicHandler(r, debug.Stack())
		}
	}()
	t()
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Posted    uint64
	Processed uint64
	Panicked  uint64
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:    l.posted.Load(),
		Processed: l.processed.Load(),
		Panicked:  l.panicked.Load(),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("posted=%d processed=%d panicked=%d", s.Posted, s.Processed, s.Panicked)
}
