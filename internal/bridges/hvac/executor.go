package hvac

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// DefaultWriteQueueSize is the number of pending writes the executor buffers.
const DefaultWriteQueueSize = 64

// WriteRequest is a queued property write.
type WriteRequest struct {
	Device  string
	Address string
	EOJ     echonet.EOJ
	Value   echonet.Value

	// Done, if set, is called on the executor goroutine with the result.
	Done func(err error)
}

type readRequest struct {
	address string
	eoj     echonet.EOJ
	epc     echonet.EPC
	result  chan readResult
}

type readResult struct {
	value echonet.Value
	err   error
}

// ExecutorStats holds executor counters.
type ExecutorStats struct {
	Reads         uint64
	Writes        uint64
	WritesDropped uint64
	WritesPending int
}

// Executor runs every device call on one goroutine so no two protocol
// operations overlap. Reads block the caller until they complete; writes
// are queued and never block.
type Executor struct {
	client ProtocolClient
	reads  chan readRequest
	writes chan WriteRequest

	startOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	readsTotal    atomic.Uint64
	writesTotal   atomic.Uint64
	writesDropped atomic.Uint64
}

// NewExecutor creates an executor. A queueSize below 1 uses DefaultWriteQueueSize.
func NewExecutor(client ProtocolClient, queueSize int) *Executor {
	if queueSize < 1 {
		queueSize = DefaultWriteQueueSize
	}
	return &Executor{
		client: client,
		reads:  make(chan readRequest),
		writes: make(chan WriteRequest, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Device calls use ctx; the worker exits when
// ctx is cancelled or Stop is called.
func (e *Executor) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.run(ctx)
	})
}

// Stop stops the worker and discards queued writes. Safe to call multiple times.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}

// Read submits a property read and waits for its result.
func (e *Executor) Read(ctx context.Context, address string, eoj echonet.EOJ, epc echonet.EPC) (echonet.Value, error) {
	req := readRequest{
		address: address,
		eoj:     eoj,
		epc:     epc,
		result:  make(chan readResult, 1),
	}

	select {
	case e.reads <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrExecutorStopped
	}

	select {
	case res := <-req.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrExecutorStopped
	}
}

// Write queues a property write without waiting. It fails with
// ErrQueueFull when the queue is at capacity.
func (e *Executor) Write(req WriteRequest) error {
	select {
	case <-e.done:
		return ErrExecutorStopped
	default:
	}

	select {
	case e.writes <- req:
		return nil
	default:
		e.writesDropped.Add(1)
		return fmt.Errorf("%w: %d pending", ErrQueueFull, cap(e.writes))
	}
}

// Stats returns current counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Reads:         e.readsTotal.Load(),
		Writes:        e.writesTotal.Load(),
		WritesDropped: e.writesDropped.Load(),
		WritesPending: len(e.writes),
	}
}

func (e *Executor) run(ctx context.Context) {
	defer e.wg.Done()
	// Callers blocked in Read must not outlive the worker.
	defer e.stopOnce.Do(func() { close(e.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case req := <-e.reads:
			value, err := e.client.GetPropertyValue(ctx, req.address, req.eoj, req.epc)
			e.readsTotal.Add(1)
			req.result <- readResult{value: value, err: err}
		case req := <-e.writes:
			err := e.client.SetPropertyValue(ctx, req.Address, req.EOJ, req.Value)
			e.writesTotal.Add(1)
			if req.Done != nil {
				req.Done(err)
			}
		}
	}
}
