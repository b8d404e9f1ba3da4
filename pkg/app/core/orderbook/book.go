package orderbook

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

// Book holds the bid and ask queues.
type Book struct {
	Bids *Queue
	Asks *Queue
}

func NewBook() *Book {
	return &Book{
		Bids: NewQueue(msg.Bid),
		Asks: NewQueue(msg.Ask),
	}
}

// Side returns the queue for s, or nil for an invalid side.
func (b *Book) Side(s msg.Side) *Queue {
	switch s {
	case msg.Bid:
		return b.Bids
	case msg.Ask:
		return b.Asks
	default:
		return nil
	}
}

// Peek returns the best entry of each side.
func (b *Book) Peek(tx *storage.Tx) (bid, ask *Entry, err error) {
	if e, ok, err := b.Bids.Peek(tx); err != nil {
		return nil, nil, err
	} else if ok {
		bid = &e
	}
	if e, ok, err := b.Asks.Peek(tx); err != nil {
		return nil, nil, err
	} else if ok {
		ask = &e
	}
	return bid, ask, nil
}

// Depth returns the number of resting entries per side.
func (b *Book) Depth(tx *storage.Tx) (bids, asks int, err error) {
	if bids, err = b.Bids.Len(tx); err != nil {
		return 0, 0, err
	}
	asks, err = b.Asks.Len(tx)
	return bids, asks, err
}

// Locate reports which side holds owner's entry, if any.
func (b *Book) Locate(tx *storage.Tx, owner common.Address) (msg.Side, bool, error) {
	for _, s := range msg.Sides {
		ok, err := b.Side(s).Contains(tx, owner)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return s, true, nil
		}
	}
	return 0, false, nil
}
