package relay

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// Envelope is the wire form of one outbound message on kafka and pubsub.
type Envelope struct {
	Source  string        `json:"source,omitempty"`
	Index   int           `json:"index"`
	Message msg.CosmosMsg `json:"message"`
}

func encodeEnvelope(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses a record produced by the kafka or pubsub dispatcher.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return e, nil
}
