package relay

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// ErrQueueFull is returned when the async buffer cannot take another batch.
var ErrQueueFull = errors.New("relay: dispatch queue full")

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("relay: dispatcher closed")

// AsyncDispatcher hands batches to a single worker so the request path never
// waits on delivery. Batches are delivered in submission order.
type AsyncDispatcher struct {
	next  Dispatcher
	log   *zap.SugaredLogger
	queue chan []msg.CosmosMsg

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	// OnError is called from the worker for every failed delivery.
	OnError func(err error)
}

func NewAsyncDispatcher(next Dispatcher, buffer int, log *zap.SugaredLogger) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &AsyncDispatcher{
		next:  next,
		log:   log,
		queue: make(chan []msg.CosmosMsg, buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		if err := d.next.Dispatch(context.Background(), batch); err != nil {
			d.log.Warnw("dispatch_failed", "count", len(batch), "err", err)
			if d.OnError != nil {
				d.OnError(err)
			}
		}
	}
}

// Dispatch enqueues msgs without blocking.
func (d *AsyncDispatcher) Dispatch(_ context.Context, msgs []msg.CosmosMsg) error {
	if len(msgs) == 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	batch := append([]msg.CosmosMsg(nil), msgs...)
	select {
	case d.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting batches and waits for queued ones to drain.
func (d *AsyncDispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
	return nil
}
