package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/order"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

// Registration is written once by Init and never changes afterwards.
type Registration struct {
	Factory  FactoryInfo                    `json:"factory"`
	Assets   [order.NumAssets]msg.AssetInfo `json:"assets"`
	Contract msg.AssetInfo                  `json:"contract"`
}

// FactoryInfo is the registry service plus the shared secret used for its
// init callback and view-key checks.
type FactoryInfo struct {
	Address  common.Address `json:"address"`
	CodeHash string         `json:"code_hash"`
	Key      string         `json:"key"`
}

var registrationKey = storage.Key(storage.PrefixConfig, []byte("registration"))

func loadRegistration(tx *storage.Tx) (*Registration, error) {
	var reg Registration
	ok, err := tx.GetJSON(registrationKey, &reg)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	if !ok {
		return nil, msg.ErrNotInitialized
	}
	return &reg, nil
}

// AssetIndex returns which registered asset addr is, or -1.
func (r *Registration) AssetIndex(addr common.Address) int {
	for i, a := range r.Assets {
		if a.Address == addr {
			return i
		}
	}
	return -1
}

// Public drops the shared secret.
func (r *Registration) Public() msg.RegistrationInfo {
	return msg.RegistrationInfo{
		Factory:  msg.AssetInfo{Address: r.Factory.Address, CodeHash: r.Factory.CodeHash},
		Assets:   r.Assets,
		Contract: r.Contract,
	}
}
