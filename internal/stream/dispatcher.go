package stream

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ryan-organically/roanoke-engine/internal/diagnostics"
	"github.com/ryan-organically/roanoke-engine/internal/forest"
)

// Generator produces one chunk. *forest.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, coord forest.ChunkCoord) (*forest.Chunk, error)
}

// Result is a finished chunk task. Exactly one of Chunk and Err is set.
type Result struct {
	Coord   forest.ChunkCoord
	Chunk   *forest.Chunk
	Err     error
	Elapsed time.Duration
}

// PanicError is a chunk task that panicked. The worker survives.
type PanicError struct {
	Coord forest.ChunkCoord
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("chunk %v: generation panicked: %v", e.Coord, e.Value)
}

// Dispatcher runs chunk tasks on a fixed pool of workers. Results are
// pushed onto a bounded queue, the only state shared between workers and
// the consumer.
type Dispatcher struct {
	gen     Generator
	workers int
	sink    diagnostics.Sink

	tasks   chan forest.ChunkCoord
	results chan Result
	wg      sync.WaitGroup
	once    sync.Once
	done    chan struct{}
}

// NewDispatcher sizes both queues to queueDepth. Non-positive arguments
// fall back to one worker and a depth of one.
func NewDispatcher(gen Generator, workers, queueDepth int, sink diagnostics.Sink) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	return &Dispatcher{
		gen:     gen,
		workers: workers,
		sink:    diagnostics.OrDiscard(sink),
		tasks:   make(chan forest.ChunkCoord, queueDepth),
		results: make(chan Result, queueDepth),
		done:    make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i)
	}
	go func() {
		<-ctx.Done()
		d.once.Do(func() { close(d.done) })
	}()
}

func (d *Dispatcher) run(ctx context.Context, worker int) {
	defer d.wg.Done()
	log := diagnostics.Logger().With(slog.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		case coord := <-d.tasks:
			res := d.generate(ctx, coord)
			if res.Err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("chunk task failed", slog.String("chunk", coord.String()), slog.Any("err", res.Err))
				d.sink.Report(diagnostics.Event{
					Kind:     diagnostics.KindChunkFailed,
					Chunk:    coord.String(),
					Instance: -1,
					Reason:   res.Err.Error(),
				})
			} else {
				log.Debug("chunk task finished", slog.String("chunk", coord.String()), slog.Duration("elapsed", res.Elapsed))
			}
			select {
			case d.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *Dispatcher) generate(ctx context.Context, coord forest.ChunkCoord) (res Result) {
	start := time.Now()
	res.Coord = coord
	defer func() {
		if r := recover(); r != nil {
			res.Chunk = nil
			res.Err = &PanicError{Coord: coord, Value: r, Stack: debug.Stack()}
		}
		res.Elapsed = time.Since(start)
	}()
	res.Chunk, res.Err = d.gen.Generate(ctx, coord)
	if res.Err != nil {
		res.Chunk = nil
	}
	return res
}

// TrySubmit queues a chunk task without blocking. It returns false when
// the task queue is full or the dispatcher has stopped.
func (d *Dispatcher) TrySubmit(coord forest.ChunkCoord) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.tasks <- coord:
		return true
	default:
		return false
	}
}

// Drain returns up to max completed results without blocking.
func (d *Dispatcher) Drain(max int) []Result {
	var out []Result
	for len(out) < max {
		select {
		case res := <-d.results:
			out = append(out, res)
		default:
			return out
		}
	}
	return out
}

// Next blocks for one result.
func (d *Dispatcher) Next(ctx context.Context) (Result, error) {
	select {
	case res := <-d.results:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
