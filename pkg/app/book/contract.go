package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/auth"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/order"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

// Contract is the order book state machine. It holds no state of its own:
// every method works on the transaction it is given, and outbound effects
// are returned in the Response rather than performed.
type Contract struct {
	orders *order.Store
	book   *orderbook.Book
	gate   *auth.Gateway
	log    *zap.Logger
}

func NewContract(gate *auth.Gateway, log *zap.Logger) *Contract {
	if log == nil {
		log = zap.NewNop()
	}
	return &Contract{
		orders: order.NewStore(),
		book:   orderbook.NewBook(),
		gate:   gate,
		log:    log,
	}
}

// Book exposes the queues for read-only inspection.
func (c *Contract) Book() *orderbook.Book { return c.book }

// Init stores the registration context and asks both asset ledgers to
// notify this contract of deposits, then reports itself to the factory.
func (c *Contract) Init(tx *storage.Tx, env msg.Env, m msg.InitMsg) (msg.Response, error) {
	switch _, err := loadRegistration(tx); {
	case err == nil:
		return msg.Response{}, msg.ErrAlreadyInitialized
	case !errors.Is(err, msg.ErrNotInitialized):
		return msg.Response{}, err
	}

	reg := Registration{
		Factory: FactoryInfo{Address: m.FactoryAddress, CodeHash: m.FactoryHash, Key: m.FactoryKey},
		Assets: [order.NumAssets]msg.AssetInfo{
			{Address: m.Token1Address, CodeHash: m.Token1CodeHash},
			{Address: m.Token2Address, CodeHash: m.Token2CodeHash},
		},
		Contract: msg.AssetInfo{Address: env.Contract.Address, CodeHash: env.Contract.CodeHash},
	}
	if reg.Assets[0].Address == reg.Assets[1].Address {
		return msg.Response{}, fmt.Errorf("both assets registered at %s", reg.Assets[0].Address.Hex())
	}
	if err := tx.SetJSON(registrationKey, reg); err != nil {
		return msg.Response{}, fmt.Errorf("failed to save registration: %w", err)
	}

	var resp msg.Response
	register := msg.Snip20Msg{RegisterReceive: &msg.RegisterReceive{CodeHash: env.Contract.CodeHash}}
	for _, a := range reg.Assets {
		out, err := msg.NewExecute(a.Address, a.CodeHash, register)
		if err != nil {
			return msg.Response{}, err
		}
		resp.Messages = append(resp.Messages, out)
	}

	callback, err := msg.NewExecute(m.FactoryAddress, m.FactoryHash, msg.FactoryMsg{
		InitCallBack: &msg.InitCallBack{
			AuthKey:         m.FactoryKey,
			ContractAddress: env.Contract.Address,
			Token1Address:   m.Token1Address,
			Token2Address:   m.Token2Address,
		},
	})
	if err != nil {
		return msg.Response{}, err
	}
	resp.Messages = append(resp.Messages, callback)
	resp.Attr("action", "init")
	return resp, nil
}

// Handle applies one state-changing request.
func (c *Contract) Handle(tx *storage.Tx, env msg.Env, m msg.HandleMsg) (msg.Response, error) {
	switch {
	case m.Receive != nil:
		return c.receive(tx, env, *m.Receive)
	case m.WithdrawOrder != nil:
		return c.withdrawOrder(tx, env.Sender)
	default:
		return msg.Response{}, fmt.Errorf("%w: %s", msg.ErrUnsupportedMessage, m.Kind())
	}
}

// receive handles a deposit notification. env.Sender is the asset ledger
// that moved the funds; r.From is the depositor who will own the order.
func (c *Contract) receive(tx *storage.Tx, env msg.Env, r msg.Receive) (msg.Response, error) {
	inner, err := msg.DecodeHandleMsg(r.Msg)
	if err != nil {
		return msg.Response{}, fmt.Errorf("%w: %w", msg.ErrUnsupportedInnerMessage, err)
	}
	if inner.Receive != nil {
		return msg.Response{}, msg.ErrRecursiveNotification
	}

	reg, err := loadRegistration(tx)
	if err != nil {
		return msg.Response{}, err
	}
	index := reg.AssetIndex(env.Sender)
	if index < 0 {
		return msg.Response{}, fmt.Errorf("%w: %s", msg.ErrUnknownAsset, env.Sender.Hex())
	}

	if inner.CreateLimitOrder == nil {
		return msg.Response{}, fmt.Errorf("%w: %s", msg.ErrUnsupportedInnerMessage, inner.Kind())
	}
	return c.createOrder(tx, env, index, r.From, r.Amount, *inner.CreateLimitOrder)
}

func (c *Contract) createOrder(tx *storage.Tx, env msg.Env, index int, owner common.Address, qty *uint256.Int, m msg.CreateLimitOrder) (msg.Response, error) {
	if !m.Side.Valid() {
		return msg.Response{}, msg.ErrInvalidSide
	}
	if m.Price == nil || m.Price.IsZero() {
		return msg.Response{}, msg.ErrZeroPrice
	}
	if qty == nil || qty.IsZero() {
		return msg.Response{}, msg.ErrZeroAmount
	}

	existing, err := c.orders.Get(tx, owner)
	if err != nil {
		return msg.Response{}, err
	}
	if existing != nil {
		return msg.Response{}, fmt.Errorf("%w: %s", msg.ErrDuplicateOwner, owner.Hex())
	}

	balances, err := order.NewBalances(index, qty)
	if err != nil {
		return msg.Response{}, err
	}
	o := &order.Order{
		Owner:               owner,
		Side:                m.Side,
		Status:              order.Active,
		Price:               new(uint256.Int).Set(m.Price),
		DepositedAssetIndex: uint8(index),
		DepositedQuantity:   new(uint256.Int).Set(qty),
		Balances:            balances,
		CreatedAt:           env.Block.Time,
	}
	if err := o.Validate(); err != nil {
		return msg.Response{}, err
	}
	if err := c.orders.Put(tx, o); err != nil {
		return msg.Response{}, err
	}
	// Insert fails with ErrDuplicateOwner if a stale entry survived; the
	// enclosing transaction then discards the Put above.
	if err := c.book.Side(o.Side).Insert(tx, owner, o.Price, o.CreatedAt); err != nil {
		return msg.Response{}, err
	}

	c.log.Debug("order_created",
		zap.String("owner", owner.Hex()),
		zap.Stringer("side", o.Side),
		zap.String("price", o.Price.Dec()),
		zap.Int("asset", index),
		zap.String("qty", qty.Dec()))

	var resp msg.Response
	resp.Attr("action", "create_limit_order")
	resp.Attr("owner", owner.Hex())
	resp.Attr("side", o.Side.String())
	resp.Attr("price", o.Price.Dec())
	return resp, nil
}

// withdrawOrder releases the whole escrow of owner's order back to owner
// and removes the order from the book.
func (c *Contract) withdrawOrder(tx *storage.Tx, owner common.Address) (msg.Response, error) {
	o, err := c.orders.Get(tx, owner)
	if err != nil {
		return msg.Response{}, err
	}
	if o == nil {
		return msg.Response{}, fmt.Errorf("%w: %s", msg.ErrNoActiveOrder, owner.Hex())
	}
	reg, err := loadRegistration(tx)
	if err != nil {
		return msg.Response{}, err
	}

	var resp msg.Response
	for _, slot := range o.Balances.NonZero() {
		asset := reg.Assets[slot.Index]
		out, err := msg.NewExecute(asset.Address, asset.CodeHash, msg.Snip20Msg{
			Transfer: &msg.Transfer{Recipient: owner, Amount: slot.Amount},
		})
		if err != nil {
			return msg.Response{}, err
		}
		resp.Messages = append(resp.Messages, out)
	}

	if err := c.orders.Delete(tx, owner); err != nil {
		return msg.Response{}, err
	}
	for _, s := range msg.Sides {
		if err := c.book.Side(s).Remove(tx, owner); err != nil {
			return msg.Response{}, err
		}
	}

	c.log.Debug("order_withdrawn", zap.String("owner", owner.Hex()), zap.Int("transfers", len(resp.Messages)))

	resp.Attr("action", "withdraw_order")
	resp.Attr("owner", owner.Hex())
	return resp, nil
}

// Query answers a read-only request. Order data is only released after the
// caller's view key has been checked.
func (c *Contract) Query(ctx context.Context, tx *storage.Tx, q msg.QueryMsg) (any, error) {
	switch {
	case q.GetOrder != nil:
		o, err := c.GetOrder(ctx, tx, q.GetOrder.Credentials)
		if err != nil {
			return nil, err
		}
		return o, nil
	case q.GetBookPeek != nil:
		peek, err := c.GetBookPeek(ctx, tx, q.GetBookPeek.Credentials)
		if err != nil {
			return nil, err
		}
		return peek, nil
	case q.GetRegistration != nil:
		reg, err := loadRegistration(tx)
		if err != nil {
			return nil, err
		}
		return reg.Public(), nil
	default:
		return nil, msg.ErrUnsupportedMessage
	}
}

func (c *Contract) authorize(ctx context.Context, tx *storage.Tx, creds msg.Credentials) error {
	reg, err := loadRegistration(tx)
	if err != nil {
		return err
	}
	return c.gate.Authorize(ctx, reg.Factory.Key, creds.Owner, creds.ViewKey)
}

// GetOrder returns the caller's own order.
func (c *Contract) GetOrder(ctx context.Context, tx *storage.Tx, creds msg.Credentials) (*order.Order, error) {
	if err := c.authorize(ctx, tx, creds); err != nil {
		return nil, err
	}
	o, err := c.orders.Get(tx, creds.Owner)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", msg.ErrNoActiveOrder, creds.Owner.Hex())
	}
	return o, nil
}

// GetBookPeek returns the best price on each side.
func (c *Contract) GetBookPeek(ctx context.Context, tx *storage.Tx, creds msg.Credentials) (msg.BookPeek, error) {
	if err := c.authorize(ctx, tx, creds); err != nil {
		return msg.BookPeek{}, err
	}
	bid, ask, err := c.book.Peek(tx)
	if err != nil {
		return msg.BookPeek{}, err
	}
	var out msg.BookPeek
	if bid != nil {
		out.BidPrice = bid.Price
	}
	if ask != nil {
		out.AskPrice = ask.Price
	}
	return out, nil
}

// CheckInvariants verifies that every stored order has exactly one queue
// entry on its side and every queue entry has a stored order.
func (c *Contract) CheckInvariants(tx *storage.Tx) error {
	orders, err := c.orders.List(tx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		side, ok, err := c.book.Locate(tx, o.Owner)
		if err != nil {
			return err
		}
		if !ok || side != o.Side {
			return fmt.Errorf("%w: order of %s not queued on %s side", msg.ErrCorruptState, o.Owner.Hex(), o.Side)
		}
	}
	bids, asks, err := c.book.Depth(tx)
	if err != nil {
		return err
	}
	if bids+asks != len(orders) {
		return fmt.Errorf("%w: %d orders but %d queue entries", msg.ErrCorruptState, len(orders), bids+asks)
	}
	return nil
}
