package order

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// NumAssets is the number of asset ledgers the book is registered with.
const NumAssets = 2

// Balances is the escrow held for one order, one slot per registered asset.
type Balances [NumAssets]*uint256.Int

// NewBalances returns balances with amount escrowed at index.
func NewBalances(index int, amount *uint256.Int) (Balances, error) {
	var b Balances
	if err := b.Deposit(index, amount); err != nil {
		return Balances{}, err
	}
	return b, nil
}

// Get returns the amount at index, never nil.
func (b Balances) Get(index int) *uint256.Int {
	if b[index] == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(b[index])
}

// Deposit adds amount to the slot at index.
func (b *Balances) Deposit(index int, amount *uint256.Int) error {
	if index < 0 || index >= NumAssets {
		return fmt.Errorf("%w: asset index %d", msg.ErrUnknownAsset, index)
	}
	if amount == nil || amount.IsZero() {
		return msg.ErrZeroAmount
	}
	sum, overflow := new(uint256.Int).AddOverflow(b.Get(index), amount)
	if overflow {
		return fmt.Errorf("escrow overflow on asset %d", index)
	}
	b[index] = sum
	return nil
}

// Slot is one nonzero escrow entry.
type Slot struct {
	Index  int
	Amount *uint256.Int
}

// NonZero returns every slot holding funds, in index order.
func (b Balances) NonZero() []Slot {
	var out []Slot
	for i := range b {
		if b[i] != nil && !b[i].IsZero() {
			out = append(out, Slot{Index: i, Amount: new(uint256.Int).Set(b[i])})
		}
	}
	return out
}

// Total sums all slots.
func (b Balances) Total() (*uint256.Int, error) {
	total := new(uint256.Int)
	for i := range b {
		if b[i] == nil {
			continue
		}
		var overflow bool
		if total, overflow = new(uint256.Int).AddOverflow(total, b[i]); overflow {
			return nil, fmt.Errorf("%w: escrow total overflows", msg.ErrCorruptState)
		}
	}
	return total, nil
}

// MarshalJSON always emits both slots, zero when empty.
func (b Balances) MarshalJSON() ([]byte, error) {
	out := make([]*uint256.Int, NumAssets)
	for i := range b {
		out[i] = b.Get(i)
	}
	return json.Marshal(out)
}

func (b *Balances) UnmarshalJSON(data []byte) error {
	var in []*uint256.Int
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in) != NumAssets {
		return fmt.Errorf("%w: expected %d balance slots, got %d", msg.ErrCorruptState, NumAssets, len(in))
	}
	copy(b[:], in)
	return nil
}
