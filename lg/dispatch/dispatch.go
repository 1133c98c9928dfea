// Package dispatch runs handlers one at a time per key. Each key (a channel
// id, in practice) gets its own worker goroutine draining a FIFO queue, so
// events from one channel are handled in arrival order while different
// channels proceed independently.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: closed")

// Task is a unit of work run on a key's worker.
type Task func(ctx context.Context)

type queue struct {
	key   string
	tasks chan Task
}

// Dispatcher keeps one queue per key, created on first use.
type Dispatcher struct {
	// sendMu keeps Close from closing a queue under a pending send.
	sendMu sync.RWMutex
	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	size   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a dispatcher whose queues hold up to size pending tasks before
// Submit starts blocking.
func New(size int) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queues: make(map[string]*queue),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) queueFor(key string) (*queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	q, ok := d.queues[key]
	if !ok {
		q = &queue{key: key, tasks: make(chan Task, d.size)}
		d.queues[key] = q
		d.wg.Add(1)
		go d.loop(q)
	}
	return q, nil
}

func (d *Dispatcher) loop(q *queue) {
	defer d.wg.Done()
	for task := range q.tasks {
		d.run(q.key, task)
	}
}

func (d *Dispatcher) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("key", key).Interface("panic", r).Msg("[dispatch] task panicked")
		}
	}()
	task(d.ctx)
}

// Submit queues task on key's worker. It blocks while the queue is full
// until ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, key string, task Task) error {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	q, err := d.queueFor(key)
	if err != nil {
		return err
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on key's worker and waits for its result.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := d.Submit(ctx, key, func(taskCtx context.Context) {
		done <- fn(taskCtx)
	}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, lets the workers finish what is queued and
// waits for them.
func (d *Dispatcher) Close() {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for key, q := range d.queues {
		close(q.tasks)
		delete(d.queues, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.cancel()
}
