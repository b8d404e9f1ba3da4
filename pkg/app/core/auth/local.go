package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

var (
	// ErrBadFactoryKey is returned when a caller presents the wrong shared secret.
	ErrBadFactoryKey = errors.New("factory key mismatch")
	ErrEmptyViewKey  = errors.New("view key must not be empty")
)

// LocalRegistry is an in-process registry. It stores only SHA3-256 digests
// of view keys.
type LocalRegistry struct {
	mu         sync.RWMutex
	address    common.Address
	factoryKey string
	keys       map[common.Address][32]byte
	books      map[common.Address]msg.InitCallBack
}

func NewLocalRegistry(address common.Address, factoryKey string) *LocalRegistry {
	return &LocalRegistry{
		address:    address,
		factoryKey: factoryKey,
		keys:       make(map[common.Address][32]byte),
		books:      make(map[common.Address]msg.InitCallBack),
	}
}

// NewViewKey returns a random 32-byte hex view key.
func NewViewKey() (string, error) {
	return newViewKey(nil)
}

// newViewKey hashes 32 random bytes together with entropy.
func newViewKey(entropy []byte) (string, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", fmt.Errorf("failed to generate view key: %w", err)
	}
	if len(entropy) == 0 {
		return hexutil.Encode(seed[:]), nil
	}
	key := sha3.Sum256(append(seed[:], entropy...))
	return hexutil.Encode(key[:]), nil
}

// SetViewKey replaces owner's view key.
func (r *LocalRegistry) SetViewKey(owner common.Address, viewKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[owner] = sha3.Sum256([]byte(viewKey))
}

func (r *LocalRegistry) IsKeyValid(_ context.Context, factoryKey string, owner common.Address, viewKey string) (bool, error) {
	if subtle.ConstantTimeCompare([]byte(factoryKey), []byte(r.factoryKey)) != 1 {
		return false, ErrBadFactoryKey
	}
	r.mu.RLock()
	want, ok := r.keys[owner]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	got := sha3.Sum256([]byte(viewKey))
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1, nil
}

// Address is the registry's contract address.
func (r *LocalRegistry) Address() common.Address { return r.address }

// Execute handles an outbound message addressed to the registry. Only the
// order book init callback is understood.
func (r *LocalRegistry) Execute(_ context.Context, body []byte) error {
	var m msg.FactoryMsg
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("failed to decode factory message: %w", err)
	}
	if m.InitCallBack == nil {
		return fmt.Errorf("unsupported factory message: %s", body)
	}
	return r.RegisterOrderBook(*m.InitCallBack)
}

// HandleAs applies a view-key message sent by sender, whose identity the
// caller has already verified. The key is only ever set for sender.
func (r *LocalRegistry) HandleAs(_ context.Context, sender common.Address, body []byte) (msg.FactoryAnswer, error) {
	var m msg.FactoryMsg
	if err := json.Unmarshal(body, &m); err != nil {
		return msg.FactoryAnswer{}, fmt.Errorf("%w: %v", msg.ErrUnsupportedMessage, err)
	}
	switch {
	case m.CreateViewingKey != nil && m.SetViewingKey == nil && m.InitCallBack == nil:
		key, err := newViewKey([]byte(m.CreateViewingKey.Entropy))
		if err != nil {
			return msg.FactoryAnswer{}, err
		}
		r.SetViewKey(sender, key)
		return msg.FactoryAnswer{CreateViewingKey: &msg.ViewingKeyAnswer{Key: key}}, nil
	case m.SetViewingKey != nil && m.CreateViewingKey == nil && m.InitCallBack == nil:
		if m.SetViewingKey.Key == "" {
			return msg.FactoryAnswer{}, ErrEmptyViewKey
		}
		r.SetViewKey(sender, m.SetViewingKey.Key)
		return msg.FactoryAnswer{SetViewingKey: &msg.StatusAnswer{Status: "success"}}, nil
	default:
		return msg.FactoryAnswer{}, fmt.Errorf("%w: expected create_viewing_key or set_viewing_key", msg.ErrUnsupportedMessage)
	}
}

// RegisterOrderBook records an order book that proved the shared secret.
func (r *LocalRegistry) RegisterOrderBook(cb msg.InitCallBack) error {
	if subtle.ConstantTimeCompare([]byte(cb.AuthKey), []byte(r.factoryKey)) != 1 {
		return ErrBadFactoryKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[cb.ContractAddress] = cb
	return nil
}

// OrderBooks returns the registered order book addresses.
func (r *LocalRegistry) OrderBooks() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.books))
	for addr := range r.books {
		out = append(out, addr)
	}
	return out
}

var _ Registry = (*LocalRegistry)(nil)
