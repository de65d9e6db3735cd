package eventbus

import (
	"log/slog"
)

// ExecutionContext is a serialising execution domain: at most one task runs
// on a given context at a time. Every handler is bound to the context it was
// registered with (spec §5) and every delivery to that handler is scheduled
// as a task on it. The bus supplies a goroutine-backed default; an embedding
// application (an event-loop thread, a worker pool slot) can supply its own
// by implementing this interface.
//
// This is the local stand-in for the "surrounding application runtime"
// spec §1 calls an external collaborator: the bus only ever asks a context
// to run a task, it never creates threads of its own beyond the default
// implementation below.
type ExecutionContext interface {
	// Run schedules task to execute on this context. Run must not block the
	// caller waiting for task to finish, and must preserve FIFO order among
	// tasks submitted by a single caller goroutine (spec §5 ordering
	// guarantee).
	Run(task func())
	// Close stops accepting new tasks and waits for in-flight tasks to
	// drain.
	Close()
}

// loopContext is the default ExecutionContext: a single goroutine draining a
// buffered task queue, exactly the shape of the teacher's per-subscription
// handleEvents goroutine in memory.go, generalised from "one queue of
// events" to "one queue of arbitrary tasks" so both inbound delivery and
// interceptor execution share the same affinity primitive.
type loopContext struct {
	tasks  chan func()
	done   chan struct{}
	closed chan struct{}
	logger *slog.Logger
	onDrop func()
}

// NewLoopContext returns an ExecutionContext backed by one goroutine and a
// task queue of the given buffer size. Handlers registered without their own
// context share the bus's default pool of these rather than getting one each.
func NewLoopContext(buffer int, logger *slog.Logger) ExecutionContext {
	return newLoopContext(buffer, logger, nil)
}

// newLoopContext is NewLoopContext plus an optional onDrop hook, invoked
// whenever Run drops a task instead of enqueueing it (full buffer or closed
// context) — used by newLoopPool to feed the bus's dropped-dispatch counter.
func newLoopContext(buffer int, logger *slog.Logger, onDrop func()) *loopContext {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &loopContext{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		logger: logger,
		onDrop: onDrop,
	}
	go c.loop()
	return c
}

func (c *loopContext) loop() {
	defer close(c.closed)
	for {
		select {
		case <-c.done:
			return
		case task := <-c.tasks:
			c.runSafely(task)
		}
	}
}

// runSafely invokes task, recovering a panic and routing it to the logger
// instead of letting it propagate and take down the loop goroutine (spec §7:
// handler failures must never escape to the sender).
func (c *loopContext) runSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("eventbus: task panicked", "recovered", r)
		}
	}()
	task()
}

// Run enqueues task without blocking the caller: if the context is closed it
// drops the task immediately, and if the task queue's buffer is already full
// it drops the task rather than block, matching the teacher's non-blocking
// default "drop" delivery mode in memory.go's Publish (spec.md:123's "no
// operation blocks the calling thread"; SPEC_FULL.md §A.1's promise to log
// full-buffer drops at Debug).
func (c *loopContext) Run(task func()) {
	select {
	case <-c.done:
		c.drop("context closed")
		return
	default:
	}
	select {
	case c.tasks <- task:
	default:
		c.drop("task buffer full")
	}
}

func (c *loopContext) drop(reason string) {
	c.logger.Debug("eventbus: dropped task", "reason", reason)
	if c.onDrop != nil {
		c.onDrop()
	}
}

func (c *loopContext) Close() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	<-c.closed
}

// loopPool is a fixed set of loopContexts handed out round-robin, used as
// the bus's shared default context when callers register a handler without
// supplying one of their own. Grounded on the teacher's WorkerCount-sized
// workerPool in memory.go, generalised from "one shared pool for async
// events" to "N independent serialising lanes any registration can bind to".
type loopPool struct {
	lanes []ExecutionContext
	next  *cyclicCounter
}

// newLoopPool builds size lanes of the given buffer depth, invoking onDrop
// (if non-nil) whenever any lane drops a task for a full buffer or a closed
// context — the bus wires this to its dropped-dispatch counter.
func newLoopPool(size, buffer int, logger *slog.Logger, onDrop func()) *loopPool {
	if size < 1 {
		size = 1
	}
	lanes := make([]ExecutionContext, size)
	for i := range lanes {
		lanes[i] = newLoopContext(buffer, logger, onDrop)
	}
	return &loopPool{lanes: lanes, next: newCyclicCounter()}
}

func (p *loopPool) pick() ExecutionContext {
	return p.lanes[p.next.next(len(p.lanes))]
}

func (p *loopPool) Close() {
	for _, lane := range p.lanes {
		lane.Close()
	}
}

// inlineContext runs tasks synchronously on the calling goroutine. It exists
// for tests and for request/reply's one-shot reply handler, which must
// observe the reply with minimal latency and has no user-visible ordering
// requirement to preserve.
type inlineContext struct{}

func (inlineContext) Run(task func()) { task() }
func (inlineContext) Close()          {}
