// Package looper runs every state-mutating operation of a signaling
// session on one goroutine, so session state needs no locks.
package looper

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WrongThreadError is the panic value of CheckOnLoop.
type WrongThreadError struct {
	Looper string
	Caller uint64
}

func (e *WrongThreadError) Error() string {
	return fmt.Sprintf("looper %s: called from goroutine %d, not on loop", e.Looper, e.Caller)
}

// Looper is a single worker draining an unbounded FIFO of tasks.
type Looper struct {
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   []func()
	running bool
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	goid atomic.Uint64
}

// New returns a looper that is not started yet. name tags its log lines.
func New(name string) *Looper {
	return &Looper{
		name:   name,
		logger: log.With().Str("module", "app.looper").Str("looper", name).Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// RequestStart launches the worker. Calling it twice is harmless; a
// stopped looper cannot be restarted.
func (l *Looper) RequestStart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.stopped {
		return
	}
	l.running = true
	go l.loop()
	l.logger.Debug().Msg("looper started")
}

// RequestStop lets already queued tasks run, then ends the worker.
func (l *Looper) RequestStop() {
	l.mu.Lock()
	if !l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	l.signal()
	l.logger.Debug().Msg("looper stop requested")
}

// Done is closed once the worker goroutine has returned.
func (l *Looper) Done() <-chan struct{} { return l.done }

// Execute queues task behind everything already queued. It never blocks and
// returns false when the looper does not accept work.
func (l *Looper) Execute(task func()) bool {
	l.mu.Lock()
	if !l.running || l.stopped {
		l.mu.Unlock()
		l.logger.Warn().Msg("execute on a looper that is not running, task dropped")
		return false
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	l.signal()
	return true
}

// OnLoop reports whether the caller is the worker goroutine.
func (l *Looper) OnLoop() bool {
	id := l.goid.Load()
	return id != 0 && id == curGoroutineID()
}

// CheckOnLoop panics with *WrongThreadError when called off the worker.
func (l *Looper) CheckOnLoop() {
	if !l.OnLoop() {
		panic(&WrongThreadError{Looper: l.name, Caller: curGoroutineID()})
	}
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Looper) loop() {
	l.goid.Store(curGoroutineID())
	defer func() {
		l.goid.Store(0)
		l.mu.Lock()
		l.running = false
		l.tasks = nil
		l.mu.Unlock()
		close(l.done)
		l.logger.Debug().Msg("looper exited")
	}()

	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			stop := l.stopped
			l.mu.Unlock()
			if stop {
				return
			}
			<-l.wake
			continue
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		task()
	}
}
