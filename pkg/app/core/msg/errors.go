package msg

import "errors"

// Errors returned by the order book. Every error aborts the whole call:
// nothing is committed and no outbound message is emitted.
var (
	ErrUnknownAsset            = errors.New("sender is not a registered asset ledger")
	ErrRecursiveNotification   = errors.New("recursive call to receive() is not allowed")
	ErrUnsupportedInnerMessage = errors.New("receive handler not found")
	ErrUnsupportedMessage      = errors.New("handler not found")
	ErrNoActiveOrder           = errors.New("no active order")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrDuplicateOwner          = errors.New("owner already has an active order")

	ErrZeroAmount         = errors.New("deposit amount must be positive")
	ErrZeroPrice          = errors.New("price must be positive")
	ErrInvalidSide        = errors.New("invalid order side")
	ErrAlreadyInitialized = errors.New("order book already initialized")
	ErrNotInitialized     = errors.New("order book not initialized")
	ErrCorruptState       = errors.New("corrupt order book state")
	ErrStaleNonce         = errors.New("nonce already used")
)
