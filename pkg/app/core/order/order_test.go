package order

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/storage"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func newOrder(owner common.Address, index int, qty, price uint64) *Order {
	bal, err := NewBalances(index, uint256.NewInt(qty))
	if err != nil {
		panic(err)
	}
	return &Order{
		Owner:               owner,
		Side:                msg.Bid,
		Status:              Active,
		Price:               uint256.NewInt(price),
		DepositedAssetIndex: uint8(index),
		DepositedQuantity:   uint256.NewInt(qty),
		Balances:            bal,
		CreatedAt:           1_700_000_000,
	}
}

func TestNewBalancesSingleSlot(t *testing.T) {
	b, err := NewBalances(1, uint256.NewInt(100))
	require.NoError(t, err)

	assert.True(t, b.Get(0).IsZero())
	assert.Equal(t, uint64(100), b.Get(1).Uint64())

	slots := b.NonZero()
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].Index)
	assert.Equal(t, uint64(100), slots[0].Amount.Uint64())
}

func TestBalancesRejectsBadDeposits(t *testing.T) {
	_, err := NewBalances(2, uint256.NewInt(1))
	assert.ErrorIs(t, err, msg.ErrUnknownAsset)

	_, err = NewBalances(0, uint256.NewInt(0))
	assert.ErrorIs(t, err, msg.ErrZeroAmount)

	_, err = NewBalances(0, nil)
	assert.ErrorIs(t, err, msg.ErrZeroAmount)

	var b Balances
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, b.Deposit(0, max))
	assert.Error(t, b.Deposit(0, uint256.NewInt(1)))
}

func TestBalancesBothSlots(t *testing.T) {
	var b Balances
	require.NoError(t, b.Deposit(0, uint256.NewInt(7)))
	require.NoError(t, b.Deposit(1, uint256.NewInt(5)))

	total, err := b.Total()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), total.Uint64())
	assert.Len(t, b.NonZero(), 2)
}

func TestBalancesJSON(t *testing.T) {
	b, err := NewBalances(0, uint256.NewInt(42))
	require.NoError(t, err)

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `["42","0"]`, string(data))

	var back Balances
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, uint64(42), back.Get(0).Uint64())

	assert.Error(t, json.Unmarshal([]byte(`["1"]`), &back))
}

func TestOrderValidate(t *testing.T) {
	o := newOrder(alice, 0, 100, 50)
	require.NoError(t, o.Validate())

	bad := *o
	bad.Price = uint256.NewInt(0)
	assert.ErrorIs(t, bad.Validate(), msg.ErrZeroPrice)

	bad = *o
	bad.Side = 0
	assert.ErrorIs(t, bad.Validate(), msg.ErrInvalidSide)

	bad = *o
	bad.Balances = Balances{}
	assert.ErrorIs(t, bad.Validate(), msg.ErrZeroAmount)
}

func TestStorePutGetDelete(t *testing.T) {
	s, err := storage.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	st := NewStore()

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		if err := st.Put(tx, newOrder(alice, 0, 100, 50)); err != nil {
			return err
		}
		return st.Put(tx, newOrder(bob, 1, 30, 70))
	}))

	require.NoError(t, s.View(func(tx *storage.Tx) error {
		got, err := st.Get(tx, alice)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, alice, got.Owner)
		assert.Equal(t, msg.Bid, got.Side)
		assert.Equal(t, Active, got.Status)
		assert.Equal(t, uint64(50), got.Price.Uint64())
		assert.Equal(t, uint64(100), got.Balances.Get(0).Uint64())
		assert.True(t, got.Balances.Get(1).IsZero())

		all, err := st.List(tx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	}))

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		return st.Delete(tx, alice)
	}))

	require.NoError(t, s.View(func(tx *storage.Tx) error {
		got, err := st.Get(tx, alice)
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	}))
}

func TestStoreListsByAddressBytes(t *testing.T) {
	s, err := storage.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	st := NewStore()

	owners := []common.Address{
		common.HexToAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"),
		common.HexToAddress("0x0a00000000000000000000000000000000000000"),
		common.HexToAddress("0xB1f0000000000000000000000000000000000000"),
		common.HexToAddress("0xa2f0000000000000000000000000000000000000"),
		common.HexToAddress("0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb"),
	}
	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		for i, o := range owners {
			if err := st.Put(tx, newOrder(o, 0, 10, uint64(i+1))); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(func(tx *storage.Tx) error {
		all, err := st.List(tx)
		require.NoError(t, err)
		require.Len(t, all, len(owners))
		for i := 1; i < len(all); i++ {
			assert.Negative(t, bytes.Compare(all[i-1].Owner.Bytes(), all[i].Owner.Bytes()),
				"%s listed before %s", all[i-1].Owner.Hex(), all[i].Owner.Hex())
		}
		return nil
	}))
}
