package msg

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// InitMsg configures the order book once, at instantiation.
type InitMsg struct {
	FactoryAddress common.Address `json:"factory_address"`
	FactoryHash    string         `json:"factory_hash"`
	FactoryKey     string         `json:"factory_key"`
	Token1Address  common.Address `json:"token1_code_address"`
	Token1CodeHash string         `json:"token1_code_hash"`
	Token2Address  common.Address `json:"token2_code_address"`
	Token2CodeHash string         `json:"token2_code_hash"`
}

// HandleMsg is the tagged union of state-changing requests. Exactly one
// field is set.
type HandleMsg struct {
	Receive          *Receive          `json:"receive,omitempty"`
	CreateLimitOrder *CreateLimitOrder `json:"create_limit_order,omitempty"`
	WithdrawOrder    *WithdrawOrder    `json:"withdraw_order,omitempty"`
}

// Receive is the deposit notification an asset ledger sends after
// transferring Amount from From into the order book.
type Receive struct {
	Sender common.Address `json:"sender"`
	From   common.Address `json:"from"`
	Amount *uint256.Int   `json:"amount"`
	Msg    []byte         `json:"msg,omitempty"` // JSON-encoded inner HandleMsg
}

// CreateLimitOrder is only valid as the inner payload of a Receive.
type CreateLimitOrder struct {
	Side  Side         `json:"side"`
	Price *uint256.Int `json:"price"`
}

type WithdrawOrder struct{}

// Kind names the variant that is set.
func (m HandleMsg) Kind() string {
	switch {
	case m.Receive != nil:
		return "receive"
	case m.CreateLimitOrder != nil:
		return "create_limit_order"
	case m.WithdrawOrder != nil:
		return "withdraw_order"
	default:
		return ""
	}
}

func (m HandleMsg) count() int {
	n := 0
	if m.Receive != nil {
		n++
	}
	if m.CreateLimitOrder != nil {
		n++
	}
	if m.WithdrawOrder != nil {
		n++
	}
	return n
}

// DecodeHandleMsg decodes a HandleMsg and checks that exactly one variant is set.
func DecodeHandleMsg(b []byte) (HandleMsg, error) {
	var m HandleMsg
	if err := json.Unmarshal(b, &m); err != nil {
		// keeps ErrInvalidSide visible when a side fails to decode
		return HandleMsg{}, fmt.Errorf("%w: %w", ErrUnsupportedMessage, err)
	}
	if m.count() != 1 {
		return HandleMsg{}, fmt.Errorf("%w: expected exactly one message variant", ErrUnsupportedMessage)
	}
	return m, nil
}

// EncodeInner encodes m for use as Receive.Msg.
func EncodeInner(m HandleMsg) ([]byte, error) {
	return json.Marshal(m)
}
