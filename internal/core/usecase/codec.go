package usecase

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

type headerJSON struct {
	ParentHash  common.Hash    `json:"parentHash"`
	Coinbase    common.Address `json:"coinbase"`
	Root        common.Hash    `json:"root"`
	TxHash      common.Hash    `json:"txHash"`
	ReceiptHash common.Hash    `json:"receiptHash"`
	Number      uint64         `json:"number"`
	GasLimit    uint64         `json:"gasLimit,omitempty"`
	GasUsed     uint64         `json:"gasUsed,omitempty"`
	Time        uint64         `json:"time,omitempty"`
	BaseFee     *hexutil.Big   `json:"baseFee,omitempty"`
}

type txJSON struct {
	Hash                 common.Hash      `json:"hash"`
	Type                 uint8            `json:"type"`
	To                   *common.Address  `json:"to,omitempty"`
	Value                *hexutil.Big     `json:"value,omitempty"`
	Gas                  uint64           `json:"gas"`
	GasPrice             *hexutil.Big     `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big     `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big     `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                uint64           `json:"nonce"`
	Data                 hexutil.Bytes    `json:"data,omitempty"`
	AccessList           types.AccessList `json:"accessList,omitempty"`
	ChainID              *hexutil.Big     `json:"chainId,omitempty"`
}

type withdrawalJSON struct {
	Index     uint64         `json:"index"`
	Validator uint64         `json:"validator"`
	Address   common.Address `json:"address"`
	Amount    uint64         `json:"amount"`
}

type blockJSON struct {
	Hash         common.Hash      `json:"hash"`
	Header       headerJSON       `json:"header"`
	Transactions []txJSON         `json:"transactions,omitempty"`
	Withdrawals  []withdrawalJSON `json:"withdrawals,omitempty"`
}

type rollbackJSON struct {
	Event         string `json:"event"`
	ToBlockNumber uint64 `json:"toBlockNumber"`
}

// MarshalBlockJSON encodes an entity.Block with hex encodings for hashes,
// big integers and calldata.
func MarshalBlockJSON(b *entity.Block) ([]byte, error) {
	if b == nil {
		return json.Marshal(nil)
	}
	bj := blockJSON{
		Hash: b.Hash,
		Header: headerJSON{
			ParentHash:  b.Header.ParentHash,
			Coinbase:    b.Header.Coinbase,
			Root:        b.Header.Root,
			TxHash:      b.Header.TxHash,
			ReceiptHash: b.Header.ReceiptHash,
			Number:      b.Header.Number,
			GasLimit:    b.Header.GasLimit,
			GasUsed:     b.Header.GasUsed,
			Time:        b.Header.Time,
			BaseFee:     toHexBig(b.Header.BaseFee),
		},
	}
	for _, tx := range b.Transactions {
		bj.Transactions = append(bj.Transactions, txJSON{
			Hash:                 tx.Hash,
			Type:                 tx.Type,
			To:                   tx.To,
			Value:                toHexBig(tx.Value),
			Gas:                  tx.Gas,
			GasPrice:             toHexBig(tx.GasPrice),
			MaxFeePerGas:         toHexBig(tx.MaxFeePerGas),
			MaxPriorityFeePerGas: toHexBig(tx.MaxPriorityFeePerGas),
			Nonce:                tx.Nonce,
			Data:                 tx.Data,
			AccessList:           tx.AccessList,
			ChainID:              toHexBig(tx.ChainID),
		})
	}
	for _, w := range b.Withdrawals {
		bj.Withdrawals = append(bj.Withdrawals, withdrawalJSON(w))
	}
	return json.Marshal(bj)
}

// UnmarshalBlockJSON is the inverse of MarshalBlockJSON.
func UnmarshalBlockJSON(data []byte) (*entity.Block, error) {
	var bj blockJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return nil, err
	}
	blk := &entity.Block{
		Hash: bj.Hash,
		Header: entity.Header{
			ParentHash:  bj.Header.ParentHash,
			Coinbase:    bj.Header.Coinbase,
			Root:        bj.Header.Root,
			TxHash:      bj.Header.TxHash,
			ReceiptHash: bj.Header.ReceiptHash,
			Number:      bj.Header.Number,
			GasLimit:    bj.Header.GasLimit,
			GasUsed:     bj.Header.GasUsed,
			Time:        bj.Header.Time,
			BaseFee:     fromHexBig(bj.Header.BaseFee),
		},
	}
	for _, tx := range bj.Transactions {
		blk.Transactions = append(blk.Transactions, entity.Transaction{
			Hash:                 tx.Hash,
			Type:                 tx.Type,
			To:                   tx.To,
			Value:                fromHexBig(tx.Value),
			Gas:                  tx.Gas,
			GasPrice:             fromHexBig(tx.GasPrice),
			MaxFeePerGas:         fromHexBig(tx.MaxFeePerGas),
			MaxPriorityFeePerGas: fromHexBig(tx.MaxPriorityFeePerGas),
			Nonce:                tx.Nonce,
			Data:                 tx.Data,
			AccessList:           tx.AccessList,
			ChainID:              fromHexBig(tx.ChainID),
		})
	}
	for _, w := range bj.Withdrawals {
		blk.Withdrawals = append(blk.Withdrawals, entity.Withdrawal(w))
	}
	return blk, nil
}

// MarshalRollbackJSON encodes the event telling consumers to discard every
// block above toNumber.
func MarshalRollbackJSON(toNumber uint64) ([]byte, error) {
	return json.Marshal(rollbackJSON{Event: "rollback", ToBlockNumber: toNumber})
}

func toHexBig(b *big.Int) *hexutil.Big {
	if b == nil {
		return nil
	}
	return (*hexutil.Big)(b)
}

func fromHexBig(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToInt()
}
