package msg

import "github.com/ethereum/go-ethereum/common"

// Env carries the execution context the surrounding environment supplies
// for every call.
type Env struct {
	Block    BlockInfo
	Sender   common.Address // immediate caller; the asset ledger for deposit notifications
	Contract ContractInfo
}

type BlockInfo struct {
	Height int64
	Time   int64 // unix seconds, used for time priority
}

type ContractInfo struct {
	Address  common.Address
	CodeHash string
}
