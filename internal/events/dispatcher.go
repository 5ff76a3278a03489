package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull         = errors.New("dispatch queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Dispatcher funnels work from many goroutines onto a single consumer, so
// exactly one handler set runs at a time and always to completion.
type Dispatcher struct {
	bus      Bus
	requests chan *dispatchJob
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
	quit      chan struct{}
}

type dispatchJob struct {
	fn   func()
	done chan struct{}
}

// NewDispatcher creates a dispatcher in front of bus with room for queueSize pending jobs.
func NewDispatcher(bus Bus, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		bus:      bus,
		requests: make(chan *dispatchJob, queueSize),
		logger:   logger.Named("dispatcher"),
		stopped:  make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It exits when ctx is done or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Stop terminates the consumer. Jobs already queued are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	// Never started: nothing to wait for.
	d.startOnce.Do(func() {
		close(d.stopped)
	})
	<-d.stopped
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped", zap.Error(ctx.Err()))
			return
		case <-d.quit:
			d.logger.Info("dispatcher stopped")
			return
		case job := <-d.requests:
			d.execute(job)
		}
	}
}

func (d *Dispatcher) execute(job *dispatchJob) {
	defer close(job.done)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatched job panicked", zap.Any("panic", r))
		}
	}()
	job.fn()
}

// Do runs fn on the dispatch goroutine and waits for it to finish. A job the
// consumer has picked up always runs to completion; ctx only bounds the wait.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}

	job := &dispatchJob{fn: fn, done: make(chan struct{})}
	select {
	case d.requests <- job:
	default:
		return ErrQueueFull
	}

	select {
	case <-job.done:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatch: %w", ctx.Err())
	}
}

// Submit publishes signal on the dispatch goroutine and waits for every handler to return.
func (d *Dispatcher) Submit(ctx context.Context, signal Signal, payload int) error {
	return d.Do(ctx, func() {
		d.bus.Publish(signal, payload)
	})
}

// QueueSize returns the number of pending jobs.
func (d *Dispatcher) QueueSize() int {
	return len(d.requests)
}
