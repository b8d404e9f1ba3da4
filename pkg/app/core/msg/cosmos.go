package msg

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CosmosMsg is an outbound execute request. It is returned from a call and
// dispatched only after the call commits; its result is never observed by
// the order book.
type CosmosMsg struct {
	ContractAddr     common.Address  `json:"contract_addr"`
	CallbackCodeHash string          `json:"callback_code_hash"`
	Msg              json.RawMessage `json:"msg"`
}

// NewExecute encodes payload as the message body for contract.
func NewExecute(contract common.Address, codeHash string, payload any) (CosmosMsg, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CosmosMsg{}, fmt.Errorf("failed to encode outbound message: %w", err)
	}
	return CosmosMsg{ContractAddr: contract, CallbackCodeHash: codeHash, Msg: body}, nil
}

// Snip20Msg is the subset of the asset ledger interface the order book calls.
type Snip20Msg struct {
	RegisterReceive *RegisterReceive `json:"register_receive,omitempty"`
	Transfer        *Transfer        `json:"transfer,omitempty"`
}

type RegisterReceive struct {
	CodeHash string `json:"code_hash"`
}

type Transfer struct {
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

// FactoryMsg is the registry's execute interface: the init callback the
// order book sends, and the view-key messages participants send themselves.
type FactoryMsg struct {
	InitCallBack     *InitCallBack     `json:"init_call_back_from_secret_order_book_to_factory,omitempty"`
	CreateViewingKey *CreateViewingKey `json:"create_viewing_key,omitempty"`
	SetViewingKey    *SetViewingKey    `json:"set_viewing_key,omitempty"`
}

// CreateViewingKey asks the registry to generate a view key for the sender.
// Entropy is mixed into the generated key.
type CreateViewingKey struct {
	Entropy string `json:"entropy"`
}

// SetViewingKey replaces the sender's view key with Key.
type SetViewingKey struct {
	Key string `json:"key"`
}

// FactoryAnswer is the registry's reply to a participant's message.
type FactoryAnswer struct {
	CreateViewingKey *ViewingKeyAnswer `json:"create_viewing_key,omitempty"`
	SetViewingKey    *StatusAnswer     `json:"set_viewing_key,omitempty"`
}

type ViewingKeyAnswer struct {
	Key string `json:"key"`
}

type StatusAnswer struct {
	Status string `json:"status"`
}

type InitCallBack struct {
	AuthKey         string         `json:"auth_key"`
	ContractAddress common.Address `json:"contract_address"`
	Token1Address   common.Address `json:"token1_address"`
	Token2Address   common.Address `json:"token2_address"`
}
