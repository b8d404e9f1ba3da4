package msg

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// QueryMsg is the tagged union of read-only requests.
type QueryMsg struct {
	GetOrder        *GetOrder        `json:"get_order,omitempty"`
	GetBookPeek     *GetBookPeek     `json:"get_book_peek,omitempty"`
	GetRegistration *GetRegistration `json:"get_registration,omitempty"`
}

// Credentials identify the caller of a private query.
type Credentials struct {
	Owner   common.Address `json:"owner"`
	ViewKey string         `json:"view_key"`
}

type GetOrder struct {
	Credentials
}

type GetBookPeek struct {
	Credentials
}

type GetRegistration struct{}

// BookPeek reports the best price on each side; nil means the side is empty.
type BookPeek struct {
	BidPrice *uint256.Int `json:"bid_price"`
	AskPrice *uint256.Int `json:"ask_price"`
}

// AssetInfo is the public view of a registered asset ledger.
type AssetInfo struct {
	Address  common.Address `json:"address"`
	CodeHash string         `json:"code_hash"`
}

// RegistrationInfo is the public part of the registration context.
type RegistrationInfo struct {
	Factory  AssetInfo    `json:"factory"`
	Assets   [2]AssetInfo `json:"assets"`
	Contract AssetInfo    `json:"contract"`
}

// DecodeQueryMsg decodes a QueryMsg and checks that exactly one variant is set.
func DecodeQueryMsg(b []byte) (QueryMsg, error) {
	var q QueryMsg
	if err := json.Unmarshal(b, &q); err != nil {
		return QueryMsg{}, fmt.Errorf("%w: %v", ErrUnsupportedMessage, err)
	}
	n := 0
	if q.GetOrder != nil {
		n++
	}
	if q.GetBookPeek != nil {
		n++
	}
	if q.GetRegistration != nil {
		n++
	}
	if n != 1 {
		return QueryMsg{}, fmt.Errorf("%w: expected exactly one query variant", ErrUnsupportedMessage)
	}
	return q, nil
}
