package entity

import "github.com/ethereum/go-ethereum/common"

// WatcherStatus is the externally visible loop status.
type WatcherStatus string

const (
	StatusIndexing WatcherStatus = "indexing"
	StatusPausing  WatcherStatus = "pausing"
	StatusPaused   WatcherStatus = "paused"
)

// WatcherInfo is a point-in-time snapshot of watcher and handler progress.
type WatcherInfo struct {
	Status                   WatcherStatus
	LastProcessedBlockNumber uint64
	LastProcessedBlockHash   common.Hash
	HandlerVersionName       string
	Error                    error
}
