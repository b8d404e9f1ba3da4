package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return b, nil
}

// DecodeJSON decodes a stored JSON value.
func DecodeJSON(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// Uint64Key encodes v big-endian so keys sort numerically.
func Uint64Key(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

// Uint64FromKey is the inverse of Uint64Key.
func Uint64FromKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid uint64 key length: %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
