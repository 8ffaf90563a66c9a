package usecase

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

type stubLogger struct{}

func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}

var errReader = errors.New("rpc unavailable")

func testBlock(n uint64) *entity.Block {
	return &entity.Block{
		Hash:   common.BigToHash(new(big.Int).SetUint64(n + 1000)),
		Header: entity.Header{Number: n, ParentHash: common.BigToHash(new(big.Int).SetUint64(n + 999))},
	}
}

// fakeReader serves blocks 1..head in order. With lazyHead set, head only
// moves to tip inside NextBlock once the reader has caught up.
type fakeReader struct {
	mu       sync.Mutex
	lazyHead bool
	tip      uint64
	head     uint64
	current  uint64
	fetches  int
	failAt   int
	seeks    []uint64
	seekErr  error
}

func (r *fakeReader) setHead(h uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = h
}

func (r *fakeReader) setTip(t uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tip = t
}

func (r *fakeReader) seekCalls() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seeks...)
}

func (r *fakeReader) CurrentBlockNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *fakeReader) HeadBlockNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

func (r *fakeReader) NextBlock(ctx context.Context) (*entity.NextBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.fetches++
	if r.failAt > 0 && r.fetches == r.failAt {
		r.failAt = 0
		return nil, errReader
	}
	if r.lazyHead && r.current >= r.head {
		r.head = r.tip
	}
	if r.current >= r.head {
		return &entity.NextBlock{Block: testBlock(r.current)}, nil
	}
	r.current++
	return &entity.NextBlock{Block: testBlock(r.current), Meta: entity.BlockMeta{IsNewBlock: true, IsEarliestBlock: r.current == 1}}, nil
}

func (r *fakeReader) SeekToBlock(_ context.Context, number uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seekErr != nil {
		return r.seekErr
	}
	r.seeks = append(r.seeks, number)
	r.current = number
	return nil
}

type handledBlock struct {
	number   uint64
	isReplay bool
}

type fakeHandler struct {
	mu       sync.Mutex
	handled  []handledBlock
	rewinds  map[uint64]uint64
	errAt    map[uint64]error
	onHandle func(n uint64)
	last     uint64
	lastHash common.Hash
}

func (h *fakeHandler) HandleBlock(_ context.Context, next *entity.NextBlock, isReplay bool) (uint64, error) {
	n := next.Block.Number()
	if h.onHandle != nil {
		h.onHandle(n)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.errAt[n]; err != nil {
		return 0, err
	}
	h.handled = append(h.handled, handledBlock{number: n, isReplay: isReplay})
	if to, ok := h.rewinds[n]; ok {
		delete(h.rewinds, n)
		return to, nil
	}
	h.last = n
	h.lastHash = next.Block.Hash
	return 0, nil
}

func (h *fakeHandler) numbers() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.handled))
	for i, b := range h.handled {
		out[i] = b.number
	}
	return out
}

func (h *fakeHandler) calls() []handledBlock {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handledBlock(nil), h.handled...)
}

func (h *fakeHandler) LastProcessedBlockNumber() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *fakeHandler) LastProcessedBlockHash() common.Hash {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastHash
}

func (h *fakeHandler) HandlerVersionName() string { return "v1" }

type recordingLogger struct {
	stubLogger
	mu     sync.Mutex
	debugs []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, msg)
}

func (l *recordingLogger) debugMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.debugs...)
}
