package reader

// Config holds configuration for the Ethereum action reader.
//
// StartAtBlock selects the first block handed to the watcher: a positive
// value is an absolute block number, zero means the head at startup and a
// negative value counts back from that head. When FinalizedBlocks is true
// the head follows the node's finalized tag, otherwise it trails the latest
// block by Confirmations.
type Config struct {
	RPCURL                    string `validate:"required,uri"`
	StartAtBlock              int64
	FinalizedBlocks           bool
	Confirmations             uint64  `validate:"lte=1024"`
	MaxHistoryLength          int     `validate:"required,gte=1,lte=10000"`
	FetchTimeoutMS            int     `validate:"gte=0"`
	DialMaxRetryAttempts      int     `validate:"gte=0"`
	DialRetryInitialBackoffMS int     `validate:"gte=0"`
	DialRetryMaxBackoffMS     int     `validate:"gte=0"`
	DialRetryJitter           float64 `validate:"gte=0,lte=1"`
}
