package crypto

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Envelope is a signed execute request. Sender signs
// keccak256(nonce || Msg), where nonce is 8 bytes big-endian and Msg is the
// exact JSON of the message. Nonce must grow with every request from Sender.
type Envelope struct {
	Msg       json.RawMessage `json:"msg"`
	Nonce     uint64          `json:"nonce"`
	Sender    common.Address  `json:"sender"`
	Signature hexutil.Bytes   `json:"signature"`
}

// SigningPayload returns the bytes an envelope signature covers.
func SigningPayload(nonce uint64, msg []byte) []byte {
	out := make([]byte, 8, 8+len(msg))
	binary.BigEndian.PutUint64(out, nonce)
	return append(out, msg...)
}

// Seal signs msg as s under nonce.
func Seal(s *Signer, nonce uint64, msg []byte) (Envelope, error) {
	sig, err := s.SignMessage(SigningPayload(nonce, msg))
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Msg:       append(json.RawMessage(nil), msg...),
		Nonce:     nonce,
		Sender:    s.Address(),
		Signature: sig,
	}, nil
}

// Verify checks that Sender produced Signature over Nonce and Msg.
func (e Envelope) Verify() error {
	return VerifyMessage(e.Sender, SigningPayload(e.Nonce, e.Msg), e.Signature)
}
