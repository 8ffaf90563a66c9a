package usecase

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

// MapBlock converts a go-ethereum block into the internal entity representation.
// Nil inputs return nil for convenience when callers deal with optional blocks.
func MapBlock(block *types.Block) *entity.Block {
	if block == nil {
		return nil
	}

	return &entity.Block{
		Hash:         block.Hash(),
		Header:       mapHeader(block.Header()),
		Transactions: mapTransactions(block.Transactions()),
		Withdrawals:  mapWithdrawals(block.Withdrawals()),
	}
}

func mapHeader(header *types.Header) entity.Header {
	if header == nil {
		return entity.Header{}
	}

	mapped := entity.Header{
		ParentHash:  header.ParentHash,
		Coinbase:    header.Coinbase,
		Root:        header.Root,
		TxHash:      header.TxHash,
		ReceiptHash: header.ReceiptHash,
		GasLimit:    header.GasLimit,
		GasUsed:     header.GasUsed,
		Time:        header.Time,
		BaseFee:     header.BaseFee,
	}
	if header.Number != nil {
		mapped.Number = header.Number.Uint64()
	}
	return mapped
}

func mapTransactions(txs types.Transactions) []entity.Transaction {
	if len(txs) == 0 {
		return nil
	}

	result := make([]entity.Transaction, len(txs))
	for i, tx := range txs {
		result[i] = entity.Transaction{
			Hash:                 tx.Hash(),
			Type:                 tx.Type(),
			To:                   tx.To(),
			Value:                tx.Value(),
			Gas:                  tx.Gas(),
			GasPrice:             tx.GasPrice(),
			MaxFeePerGas:         tx.GasFeeCap(),
			MaxPriorityFeePerGas: tx.GasTipCap(),
			Nonce:                tx.Nonce(),
			Data:                 common.CopyBytes(tx.Data()),
			AccessList:           cloneAccessList(tx.AccessList()),
			ChainID:              tx.ChainId(),
		}
	}
	return result
}

func mapWithdrawals(withdrawals types.Withdrawals) []entity.Withdrawal {
	if len(withdrawals) == 0 {
		return nil
	}

	result := make([]entity.Withdrawal, 0, len(withdrawals))
	for _, w := range withdrawals {
		if w == nil {
			continue
		}
		result = append(result, entity.Withdrawal{
			Index:     w.Index,
			Validator: w.Validator,
			Address:   w.Address,
			Amount:    w.Amount,
		})
	}
	return result
}

func cloneAccessList(list types.AccessList) types.AccessList {
	if len(list) == 0 {
		return nil
	}

	clone := make(types.AccessList, len(list))
	for i, entry := range list {
		keys := make([]common.Hash, len(entry.StorageKeys))
		copy(keys, entry.StorageKeys)
		clone[i] = types.AccessTuple{Address: entry.Address, StorageKeys: keys}
	}
	return clone
}
