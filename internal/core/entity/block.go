package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the denormalized view of an Ethereum block passed from the
// reader to the handler. Mapping from geth types lives in usecase.
type Block struct {
	Hash         common.Hash `validate:"required"`
	Header       Header      `validate:"required"`
	Transactions []Transaction
	Withdrawals  []Withdrawal
}

// Number is a shorthand for Header.Number that tolerates a nil receiver.
func (b *Block) Number() uint64 {
	if b == nil {
		return 0
	}
	return b.Header.Number
}

// Header keeps the header fields the indexer cares about.
type Header struct {
	ParentHash  common.Hash
	Coinbase    common.Address
	Root        common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	Number      uint64 `validate:"gte=0"`
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	BaseFee     *big.Int
}

// Transaction captures key fields from go-ethereum transactions.
type Transaction struct {
	Hash                 common.Hash
	Type                 uint8
	To                   *common.Address
	Value                *big.Int
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                uint64
	Data                 []byte
	AccessList           types.AccessList
	ChainID              *big.Int
}

// Withdrawal represents a single withdrawal entry from a block (Shanghai+).
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64
}

// BlockMeta describes how a block relates to the reader's position.
type BlockMeta struct {
	// IsNewBlock is false when the reader had nothing past its head and
	// returned the block it already delivered.
	IsNewBlock bool
	// IsRollback is set on the first block of a newly adopted fork.
	IsRollback bool
	// IsEarliestBlock is set when the block is the configured start block.
	IsEarliestBlock bool
}

// NextBlock is what an action reader yields on each fetch.
type NextBlock struct {
	Block *Block
	Meta  BlockMeta
}
