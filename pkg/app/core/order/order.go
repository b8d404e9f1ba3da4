package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// Status represents the lifecycle state of an order
type Status int8

const (
	Active Status = iota
	Withdrawn
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Withdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = Active
	case "withdrawn":
		*s = Withdrawn
	default:
		return fmt.Errorf("unknown order status %q", b)
	}
	return nil
}

// Order is the single resting order of one participant.
// Only Active orders are stored; withdrawal deletes the record.
type Order struct {
	Owner  common.Address `json:"owner"`
	Side   msg.Side       `json:"side"`
	Status Status         `json:"status"`
	Price  *uint256.Int   `json:"price"` // limit price

	DepositedAssetIndex uint8        `json:"deposited_asset_index"` // 0 or 1
	DepositedQuantity   *uint256.Int `json:"deposited_quantity"`

	// Escrowed amount per registered asset
	Balances Balances `json:"balances"`

	CreatedAt int64 `json:"created_at"` // block time (unix seconds)
}

// Validate checks order invariants
func (o *Order) Validate() error {
	if !o.Side.Valid() {
		return fmt.Errorf("%w: %d", msg.ErrInvalidSide, o.Side)
	}
	if o.Price == nil || o.Price.IsZero() {
		return msg.ErrZeroPrice
	}
	if int(o.DepositedAssetIndex) >= NumAssets {
		return fmt.Errorf("%w: asset index %d", msg.ErrCorruptState, o.DepositedAssetIndex)
	}
	total, err := o.Balances.Total()
	if err != nil {
		return err
	}
	if total.IsZero() {
		return msg.ErrZeroAmount
	}
	return nil
}
