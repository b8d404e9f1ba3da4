package book

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/auth"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/relay"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
	"github.com/uhyunpark/secret-orderbook/pkg/telemetry"
	"github.com/uhyunpark/secret-orderbook/pkg/util"
)

type NodeConfig struct {
	// Self is this order book's own address and code hash.
	Self       msg.ContractInfo
	Dispatcher relay.Dispatcher
	Metrics    *telemetry.Metrics
	Clock      util.Clock
	Logger     *zap.SugaredLogger
}

// Node runs the contract against a store. State-changing calls are applied
// one at a time; each call is one storage transaction and its outbound
// messages are dispatched only after that transaction commits.
type Node struct {
	mu       sync.RWMutex
	store    *storage.Store
	contract *Contract

	self       msg.ContractInfo
	dispatcher relay.Dispatcher
	metrics    *telemetry.Metrics
	clock      util.Clock
	log        *zap.SugaredLogger

	hooksMu sync.RWMutex
	hooks   []func(kind string, resp msg.Response)
}

func NewNode(store *storage.Store, gate *auth.Gateway, cfg NodeConfig) *Node {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = relay.NewLogDispatcher(cfg.Logger)
	}
	if cfg.Metrics != nil && gate.OnDenied == nil {
		gate.OnDenied = cfg.Metrics.Denied
	}
	return &Node{
		store:      store,
		contract:   NewContract(gate, cfg.Logger.Desugar()),
		self:       cfg.Self,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}
}

// Self returns the address the node answers as.
func (n *Node) Self() msg.ContractInfo { return n.self }

// OnCommit registers fn to run after every committed state change.
func (n *Node) OnCommit(fn func(kind string, resp msg.Response)) {
	n.hooksMu.Lock()
	n.hooks = append(n.hooks, fn)
	n.hooksMu.Unlock()
}

// Initialized reports whether Instantiate has committed.
func (n *Node) Initialized() (bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var ok bool
	err := n.store.View(func(tx *storage.Tx) error {
		var err error
		ok, err = tx.Has(registrationKey)
		return err
	})
	return ok, err
}

// Instantiate runs Init as sender.
func (n *Node) Instantiate(ctx context.Context, sender common.Address, m msg.InitMsg) (msg.Response, error) {
	return n.apply(ctx, "init", sender, func(tx *storage.Tx, env msg.Env) (msg.Response, error) {
		return n.contract.Init(tx, env, m)
	})
}

// Execute runs a handle message as sender.
func (n *Node) Execute(ctx context.Context, sender common.Address, m msg.HandleMsg) (msg.Response, error) {
	return n.apply(ctx, m.Kind(), sender, func(tx *storage.Tx, env msg.Env) (msg.Response, error) {
		return n.contract.Handle(tx, env, m)
	})
}

// ExecuteSigned runs a handle message taken from a signed request. The
// nonce is checked and advanced in the call's own transaction. A call that
// is rejected still spends its nonce, so the same request can never be
// applied later.
func (n *Node) ExecuteSigned(ctx context.Context, sender common.Address, nonce uint64, m msg.HandleMsg) (msg.Response, error) {
	resp, err := n.apply(ctx, m.Kind(), sender, func(tx *storage.Tx, env msg.Env) (msg.Response, error) {
		if err := spendNonce(tx, sender, nonce); err != nil {
			return msg.Response{}, err
		}
		return n.contract.Handle(tx, env, m)
	})
	if err != nil && !errors.Is(err, msg.ErrStaleNonce) {
		if serr := n.SpendNonce(sender, nonce); serr != nil && !errors.Is(serr, msg.ErrStaleNonce) {
			n.log.Warnw("nonce_spend_failed", "sender", sender.Hex(), "nonce", nonce, "err", serr)
		}
	}
	return resp, err
}

// SpendNonce consumes nonce for sender without applying a call. Requests
// handled outside the order book use it to share the sender's nonce stream.
func (n *Node) SpendNonce(sender common.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.Update(func(tx *storage.Tx) error {
		return spendNonce(tx, sender, nonce)
	})
}

func (n *Node) apply(ctx context.Context, kind string, sender common.Address, fn func(*storage.Tx, msg.Env) (msg.Response, error)) (msg.Response, error) {
	n.mu.Lock()
	start := time.Now()

	var resp msg.Response
	err := n.store.Update(func(tx *storage.Tx) error {
		height, err := tx.NextSequence("height")
		if err != nil {
			return err
		}
		env := msg.Env{
			Block:    msg.BlockInfo{Height: int64(height), Time: n.clock.Now().Unix()},
			Sender:   sender,
			Contract: n.self,
		}
		resp, err = fn(tx, env)
		return err
	})
	n.metrics.ObserveCall(kind, err, time.Since(start).Seconds())
	if err != nil {
		n.mu.Unlock()
		n.log.Debugw("call_rejected", "kind", kind, "sender", sender.Hex(), "err", err)
		return msg.Response{}, err
	}

	switch kind {
	case "receive":
		n.metrics.OrderCreated()
	case "withdraw_order":
		n.metrics.OrderWithdrawn()
	}
	n.recordDepth()

	// still under the lock so batches leave in commit order
	if len(resp.Messages) > 0 {
		if derr := n.dispatcher.Dispatch(ctx, resp.Messages); derr != nil {
			n.metrics.DispatchFailed(derr)
			n.log.Warnw("dispatch_failed", "kind", kind, "count", len(resp.Messages), "err", derr)
		}
	}
	n.mu.Unlock()

	n.log.Infow("call_committed", "kind", kind, "sender", sender.Hex(), "messages", len(resp.Messages))

	n.hooksMu.RLock()
	hooks := append([]func(string, msg.Response){}, n.hooks...)
	n.hooksMu.RUnlock()
	for _, h := range hooks {
		h(kind, resp)
	}
	return resp, nil
}

// recordDepth must be called with mu held.
func (n *Node) recordDepth() {
	if n.metrics == nil {
		return
	}
	_ = n.store.View(func(tx *storage.Tx) error {
		bids, asks, err := n.contract.Book().Depth(tx)
		if err != nil {
			return err
		}
		n.metrics.SetDepth(msg.Bid.String(), bids)
		n.metrics.SetDepth(msg.Ask.String(), asks)
		return nil
	})
}

// Query answers a read-only request. Queries run concurrently with each
// other but never with a state change.
func (n *Node) Query(ctx context.Context, q msg.QueryMsg) (any, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out any
	err := n.store.View(func(tx *storage.Tx) error {
		var err error
		out, err = n.contract.Query(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BookPeek is the typed form of the get_book_peek query.
func (n *Node) BookPeek(ctx context.Context, creds msg.Credentials) (msg.BookPeek, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out msg.BookPeek
	err := n.store.View(func(tx *storage.Tx) error {
		var err error
		out, err = n.contract.GetBookPeek(ctx, tx, creds)
		return err
	})
	return out, err
}

// CheckInvariants verifies order and queue consistency on the committed state.
func (n *Node) CheckInvariants() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.store.View(n.contract.CheckInvariants)
}
