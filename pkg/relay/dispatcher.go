package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// Dispatcher delivers the outbound messages of a committed call. Delivery
// results are never fed back into the order book.
type Dispatcher interface {
	Dispatch(ctx context.Context, msgs []msg.CosmosMsg) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msgs []msg.CosmosMsg) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msgs []msg.CosmosMsg) error {
	return f(ctx, msgs)
}

// LogDispatcher only logs messages. Default for local runs.
type LogDispatcher struct {
	log *zap.SugaredLogger
}

func NewLogDispatcher(log *zap.SugaredLogger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(_ context.Context, msgs []msg.CosmosMsg) error {
	for i, m := range msgs {
		d.log.Infow("outbound_message",
			"index", i,
			"contract", m.ContractAddr.Hex(),
			"code_hash", m.CallbackCodeHash,
			"msg", string(m.Msg))
	}
	return nil
}

// Sink executes a message body addressed to an in-process contract.
type Sink interface {
	Execute(ctx context.Context, body []byte) error
}

// Router delivers messages for registered local contracts to their sink and
// forwards the rest to the fallback dispatcher, preserving order within each.
type Router struct {
	mu       sync.RWMutex
	sinks    map[common.Address]Sink
	fallback Dispatcher
}

func NewRouter(fallback Dispatcher) *Router {
	return &Router{sinks: make(map[common.Address]Sink), fallback: fallback}
}

// Register routes messages for addr to sink.
func (r *Router) Register(addr common.Address, sink Sink) {
	r.mu.Lock()
	r.sinks[addr] = sink
	r.mu.Unlock()
}

func (r *Router) Dispatch(ctx context.Context, msgs []msg.CosmosMsg) error {
	var remote []msg.CosmosMsg
	for _, m := range msgs {
		r.mu.RLock()
		sink, ok := r.sinks[m.ContractAddr]
		r.mu.RUnlock()
		if !ok {
			remote = append(remote, m)
			continue
		}
		if err := sink.Execute(ctx, m.Msg); err != nil {
			return fmt.Errorf("local delivery to %s failed: %w", m.ContractAddr.Hex(), err)
		}
	}
	if len(remote) == 0 || r.fallback == nil {
		return nil
	}
	return r.fallback.Dispatch(ctx, remote)
}
