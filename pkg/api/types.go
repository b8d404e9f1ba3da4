package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// API request and response types for REST endpoints and WebSocket messages

// ExecuteResponse is returned for a committed execute request
type ExecuteResponse struct {
	Status   string          `json:"status"`
	Messages []msg.CosmosMsg `json:"messages"`
	Log      []msg.Attribute `json:"log"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSRequest is sent by clients to manage their book feed
type WSRequest struct {
	Op      string         `json:"op"` // "subscribe" or "unsubscribe"
	Owner   common.Address `json:"owner"`
	ViewKey string         `json:"view_key"`
}

// BookPeekUpdate is pushed to authorized subscribers after every committed call
type BookPeekUpdate struct {
	Type      string       `json:"type"` // "book_peek"
	BidPrice  *uint256.Int `json:"bid_price"`
	AskPrice  *uint256.Int `json:"ask_price"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// WSError tells a client why its subscription was refused or dropped
type WSError struct {
	Type  string `json:"type"` // "error"
	Error string `json:"error"`
}
