package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

// Store is the keyed record of active orders, one per owner.
// Format: "ord:{20-byte address}"
type Store struct{}

func NewStore() *Store { return &Store{} }

func orderKey(owner common.Address) []byte {
	return storage.Key(storage.PrefixOrder, owner.Bytes())
}

// Put inserts or overwrites the owner's order
func (s *Store) Put(tx *storage.Tx, o *Order) error {
	if err := tx.SetJSON(orderKey(o.Owner), o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// Get loads the owner's order
// Returns nil if the owner has no order
func (s *Store) Get(tx *storage.Tx, owner common.Address) (*Order, error) {
	var o Order
	ok, err := tx.GetJSON(orderKey(owner), &o)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// Delete removes the owner's order
func (s *Store) Delete(tx *storage.Tx, owner common.Address) error {
	if err := tx.Delete(orderKey(owner)); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// List returns every stored order in owner address byte order.
func (s *Store) List(tx *storage.Tx) ([]*Order, error) {
	kvs, err := tx.Scan([]byte(storage.PrefixOrder), 0)
	if err != nil {
		return nil, err
	}
	orders := make([]*Order, 0, len(kvs))
	for _, kv := range kvs {
		var o Order
		if err := storage.DecodeJSON(kv.Value, &o); err != nil {
			return nil, err
		}
		orders = append(orders, &o)
	}
	return orders, nil
}
