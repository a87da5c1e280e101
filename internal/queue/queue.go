// Package queue implements the bounded-concurrency dispatcher that fans
// tool calls issued during a single turn out to the tool registry, holding
// at most max_concurrent calls in flight at once.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"loom/internal/tools"
)

// Priority orders queued calls: High dequeues before Normal, FIFO within
// each band.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// DefaultMaxConcurrent is used when New is given maxConcurrent <= 0.
const DefaultMaxConcurrent = 3

// DefaultTimeout is applied to a call whose ExecutionContext carries no
// timeout.
const DefaultTimeout = 30 * time.Second

// Future is the handle returned by Add; it resolves once the call has run
// (or been rejected without running).
type Future struct {
	done   chan struct{}
	once   sync.Once
	result tools.ExecutionResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result tools.ExecutionResult, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the call completes or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (tools.ExecutionResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return tools.ExecutionResult{}, ctx.Err()
	}
}

// Done exposes the completion channel for select-based waiting.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the call's outcome, blocking until it's available. Unlike
// Wait, it never races against a context — callers that already know the
// future is done (e.g. after Queue.Wait returns) should use this instead of
// Wait(ctx), since selecting on an already-cancelled ctx alongside an
// already-closed done channel picks between them arbitrarily.
func (f *Future) Result() (tools.ExecutionResult, error) {
	<-f.done
	return f.result, f.err
}

// job is one queued call plus the bookkeeping needed to order and cancel it.
type job struct {
	name     string
	params   map[string]any
	ec       tools.ExecutionContext
	priority Priority
	seq      int64
	future   *Future
	index    int
}

// jobHeap is a container/heap implementation giving higher priority first,
// and lower sequence number (earlier arrival) first within a priority band.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// Queue is a bounded-concurrency, priority-ordered dispatcher for tool
// calls issued during one turn. A Queue is constructed with the turn's
// context: cancelling that context aborts the queue — queued calls that
// never started complete with a cancellation error, and calls already in
// flight receive the same cancellation signal the registry forwards to the
// tool body.
type Queue struct {
	registry      *tools.Registry
	maxConcurrent int64
	sem           *semaphore.Weighted

	turnCtx context.Context

	mu     sync.Mutex
	pq     jobHeap
	seq    int64
	closed bool
	wake   chan struct{}

	wg sync.WaitGroup
}

// New creates a Queue bound to turnCtx. Cancelling turnCtx is how the
// orchestrator aborts the turn; the queue never cancels it itself.
func New(turnCtx context.Context, registry *tools.Registry, maxConcurrent int) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	q := &Queue{
		registry:      registry,
		maxConcurrent: int64(maxConcurrent),
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		turnCtx:       turnCtx,
		wake:          make(chan struct{}, 1),
	}
	go q.dispatch()
	return q
}

// Add enqueues a call and returns a Future that resolves when it completes.
// New arrivals are ordered by priority, then by arrival order within a
// priority band; they never preempt or starve calls already in flight.
func (q *Queue) Add(name string, params map[string]any, ec tools.ExecutionContext, priority Priority) *Future {
	future := newFuture()

	q.mu.Lock()
	if q.closed || q.turnCtx.Err() != nil {
		q.mu.Unlock()
		future.complete(tools.ExecutionResult{}, q.turnCtx.Err())
		return future
	}
	q.seq++
	j := &job{
		name:     name,
		params:   params,
		ec:       ec,
		priority: priority,
		seq:      q.seq,
		future:   future,
	}
	heap.Push(&q.pq, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return future
}

// Wait blocks until every call added so far has completed — the queue
// drains before a turn returns, whether it finished normally or was
// aborted.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// dispatch pops the highest-priority queued job, blocks for a free
// concurrency slot, then runs it on its own goroutine. It exits once
// turnCtx is done and every remaining queued job has been failed with a
// cancellation error.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		empty := q.pq.Len() == 0
		q.mu.Unlock()
		if empty {
			select {
			case <-q.wake:
				continue
			case <-q.turnCtx.Done():
				q.drainOnCancel()
				return
			}
		}

		// Acquire a slot before picking a job, not after, so a call that
		// arrives with higher priority while every slot is busy is still
		// considered the moment a slot frees up instead of losing to
		// whatever was already popped out of the heap.
		if err := q.sem.Acquire(q.turnCtx, 1); err != nil {
			q.drainOnCancel()
			return
		}

		q.mu.Lock()
		if q.pq.Len() == 0 {
			q.mu.Unlock()
			q.sem.Release(1)
			continue
		}
		j := heap.Pop(&q.pq).(*job)
		q.mu.Unlock()

		q.wg.Add(1)
		go q.runJob(j)
	}
}

// drainOnCancel fails every job still sitting in the queue once turnCtx is
// done, so Add callers never block forever waiting on a future that will
// never run.
func (q *Queue) drainOnCancel() {
	q.mu.Lock()
	q.closed = true
	remaining := q.pq
	q.pq = nil
	q.mu.Unlock()

	for _, j := range remaining {
		j.future.complete(tools.ExecutionResult{}, q.turnCtx.Err())
	}
}

// runJob executes one call, enforcing its own wall-clock timeout on top of
// turnCtx, and releases its concurrency slot the moment it returns — a
// timed-out call never holds a slot past expiry.
func (q *Queue) runJob(j *job) {
	defer q.wg.Done()
	defer q.sem.Release(1)

	timeout := j.ec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(q.turnCtx, timeout)
	defer cancel()

	start := time.Now()
	// The queue, not execute_tracked, owns this call's timeout budget —
	// pass ec through with Timeout cleared so execute_tracked doesn't
	// layer a second, redundant deadline underneath callCtx.
	innerEC := j.ec
	innerEC.Timeout = 0
	result, err := q.registry.ExecuteTracked(callCtx, j.name, j.params, innerEC)

	if callCtx.Err() == context.DeadlineExceeded {
		timeoutErr := tools.NewToolTimeoutError(j.name, timeout.String())
		result = tools.ExecutionResult{
			Success:    false,
			Output:     "",
			Error:      timeoutErr.Error(),
			DurationMs: time.Since(start).Milliseconds(),
			Timestamp:  start,
		}
		err = timeoutErr
	}

	j.future.complete(result, err)
}
