package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

func nonceKey(sender common.Address) []byte {
	return storage.Key(storage.PrefixNonce, sender.Bytes())
}

// spendNonce records nonce as the last one accepted from sender. It must be
// greater than every nonce accepted from sender before; zero never is.
func spendNonce(tx *storage.Tx, sender common.Address, nonce uint64) error {
	key := nonceKey(sender)
	data, err := tx.Get(key)
	if err != nil {
		return err
	}
	var last uint64
	if data != nil {
		if last, err = storage.Uint64FromKey(data); err != nil {
			return fmt.Errorf("%w: nonce of %s: %v", msg.ErrCorruptState, sender.Hex(), err)
		}
	}
	if nonce <= last {
		return fmt.Errorf("%w: %d, last accepted %d", msg.ErrStaleNonce, nonce, last)
	}
	return tx.Set(key, storage.Uint64Key(nonce))
}
