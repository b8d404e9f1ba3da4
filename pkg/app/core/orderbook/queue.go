package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

const (
	priceLen   = 32
	timeLen    = 8
	seqLen     = 8
	rankLen    = priceLen + timeLen + seqLen
	seqCounter = "queue"
)

// Entry is one resting order's position in the queue.
type Entry struct {
	Owner     common.Address
	Price     *uint256.Int
	CreatedAt int64
	Seq       uint64 // arrival order, breaks ties at equal price and time
}

// Queue is the price-time priority queue for one side of the book.
//
// Entries live in the store's ordered keyspace, so the best entry is the
// first key under the side's prefix:
//
//	q:<side>:<price 32B><created_at 8B><seq 8B> → owner
//	qi:<side>:<owner>                          → queue key
//
// Bids store the complement of the price so the highest price sorts first;
// asks store the price as is so the lowest sorts first. Ties at equal price
// fall back to created_at, then arrival sequence, both ascending.
type Queue struct {
	side        msg.Side
	prefix      []byte
	indexPrefix []byte
}

// NewQueue returns the queue for side.
func NewQueue(side msg.Side) *Queue {
	return &Queue{
		side:        side,
		prefix:      storage.Key(storage.PrefixQueue, []byte(side.String()+":")),
		indexPrefix: storage.Key(storage.PrefixQueueIndex, []byte(side.String()+":")),
	}
}

// Side returns the side this queue ranks.
func (q *Queue) Side() msg.Side { return q.side }

func (q *Queue) indexKey(owner common.Address) []byte {
	return storage.Key(string(q.indexPrefix), owner.Bytes())
}

func (q *Queue) rankKey(price *uint256.Int, createdAt int64, seq uint64) []byte {
	p := price.Bytes32()
	if q.side == msg.Bid {
		for i := range p {
			p[i] = ^p[i]
		}
	}
	// flip the sign bit so negative times still sort before positive ones
	t := storage.Uint64Key(uint64(createdAt) ^ (1 << 63))
	return storage.Key(string(q.prefix), p[:], t, storage.Uint64Key(seq))
}

func (q *Queue) decode(kv storage.KV) (Entry, error) {
	rank := kv.Key[len(q.prefix):]
	if len(rank) != rankLen || len(kv.Value) != common.AddressLength {
		return Entry{}, fmt.Errorf("%w: malformed %s queue entry", msg.ErrCorruptState, q.side)
	}
	var p [priceLen]byte
	copy(p[:], rank[:priceLen])
	if q.side == msg.Bid {
		for i := range p {
			p[i] = ^p[i]
		}
	}
	t, _ := storage.Uint64FromKey(rank[priceLen : priceLen+timeLen])
	seq, _ := storage.Uint64FromKey(rank[priceLen+timeLen:])
	return Entry{
		Owner:     common.BytesToAddress(kv.Value),
		Price:     new(uint256.Int).SetBytes32(p[:]),
		CreatedAt: int64(t ^ (1 << 63)),
		Seq:       seq,
	}, nil
}

// Insert places owner's entry at its price-time position. The owner must
// not already have an entry on this side.
func (q *Queue) Insert(tx *storage.Tx, owner common.Address, price *uint256.Int, createdAt int64) error {
	if price == nil {
		return msg.ErrZeroPrice
	}
	idx := q.indexKey(owner)
	exists, err := tx.Has(idx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s already queued on %s side", msg.ErrDuplicateOwner, owner.Hex(), q.side)
	}

	seq, err := tx.NextSequence(seqCounter)
	if err != nil {
		return err
	}
	key := q.rankKey(price, createdAt, seq)
	if err := tx.Set(key, owner.Bytes()); err != nil {
		return err
	}
	return tx.Set(idx, key)
}

// Peek returns the best-ranked entry without removing it.
func (q *Queue) Peek(tx *storage.Tx) (Entry, bool, error) {
	kv, ok, err := tx.First(q.prefix)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	e, err := q.decode(kv)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Remove deletes owner's entry wherever it sits. Removing an owner with no
// entry is a no-op.
func (q *Queue) Remove(tx *storage.Tx, owner common.Address) error {
	idx := q.indexKey(owner)
	key, err := tx.Get(idx)
	if err != nil {
		return err
	}
	if key == nil {
		return nil
	}
	if err := tx.Delete(key); err != nil {
		return err
	}
	return tx.Delete(idx)
}

// Contains reports whether owner has an entry on this side.
func (q *Queue) Contains(tx *storage.Tx, owner common.Address) (bool, error) {
	return tx.Has(q.indexKey(owner))
}

// Entries returns up to limit entries in priority order (limit <= 0: all).
func (q *Queue) Entries(tx *storage.Tx, limit int) ([]Entry, error) {
	kvs, err := tx.Scan(q.prefix, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		e, err := q.decode(kv)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Len counts the entries on this side.
func (q *Queue) Len(tx *storage.Tx) (int, error) {
	kvs, err := tx.Scan(q.indexPrefix, 0)
	return len(kvs), err
}
