package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
)

type loopState int

const (
	stateIdle loopState = iota
	statePolling
	statePausing
	stateErrored
)

var loopStates = []loopState{stateIdle, statePolling, statePausing, stateErrored}

func (s loopState) String() string {
	switch s {
	case statePolling:
		return "polling"
	case statePausing:
		return "pausing"
	case stateErrored:
		return "errored"
	default:
		return "idle"
	}
}

func (s loopState) running() bool { return s == statePolling || s == statePausing }

// Watcher drives an action reader into an action handler. Each iteration
// drains blocks up to the reader's head and then schedules the next
// iteration after the remainder of the poll interval.
type Watcher struct {
	log          applog.AppLogger
	reader       port.ActionReader
	handler      port.ActionHandler
	pollInterval time.Duration
	m            *metrics.WatcherMetrics

	// launch runs an iteration started by Start or Replay.
	launch func(func())

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    loopState
	lastErr  error
	timer    *time.Timer
	inFlight bool
	closed   bool
}

var _ port.WatcherControl = (*Watcher)(nil)

func NewWatcher(log applog.AppLogger, reader port.ActionReader, handler port.ActionHandler, pollInterval time.Duration) (*Watcher, error) {
	switch {
	case log == nil:
		return nil, apperr.NewInvalidArgErr("logger is required", nil)
	case reader == nil:
		return nil, apperr.NewInvalidArgErr("action reader is required", nil)
	case handler == nil:
		return nil, apperr.NewInvalidArgErr("action handler is required", nil)
	case pollInterval < 0:
		return nil, apperr.NewInvalidArgErr(fmt.Sprintf("poll interval must not be negative, got %s", pollInterval), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		log:          log,
		reader:       reader,
		handler:      handler,
		pollInterval: pollInterval,
		m:            metrics.Watcher(),
		launch:       func(fn func()) { go fn() },
		ctx:          ctx,
		cancel:       cancel,
	}
	w.setStateLocked(stateIdle)
	return w, nil
}

// Start begins indexing. It returns false when the watcher is already
// running or has been closed.
func (w *Watcher) Start() bool {
	return w.begin(false)
}

// Replay is Start with the first iteration flagged as a replay, so the
// handler applies state without emitting side effects.
func (w *Watcher) Replay() bool {
	return w.begin(true)
}

// Pause asks the loop to stop at its next checkpoint. The block being
// handled, if any, is completed first.
func (w *Watcher) Pause() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.running() {
		return false
	}
	w.setStateLocked(statePausing)
	w.log.Info("Pausing indexing", "current_block", w.reader.CurrentBlockNumber())
	return true
}

// Watch runs a single iteration on the calling goroutine and schedules the
// next one unless the iteration paused, failed or the watcher was closed.
func (w *Watcher) Watch(isReplay bool) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	defer w.wg.Done()
	w.watch(isReplay)
}

func (w *Watcher) Info() entity.WatcherInfo {
	w.mu.Lock()
	state, lastErr := w.state, w.lastErr
	w.mu.Unlock()

	status := entity.StatusPaused
	switch state {
	case statePolling:
		status = entity.StatusIndexing
	case statePausing:
		status = entity.StatusPausing
	}

	return entity.WatcherInfo{
		Status:                   status,
		LastProcessedBlockNumber: w.handler.LastProcessedBlockNumber(),
		LastProcessedBlockHash:   w.handler.LastProcessedBlockHash(),
		HandlerVersionName:       w.handler.HandlerVersionName(),
		Error:                    lastErr,
	}
}

// Close stops any pending iteration, cancels the one in flight and waits
// for it to return. It is safe to call more than once.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.stopTimerLocked()
	if w.state != stateErrored {
		w.setStateLocked(stateIdle)
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	w.log.Info("Watcher closed")
}

func (w *Watcher) begin(isReplay bool) bool {
	w.mu.Lock()
	if w.closed || w.state.running() {
		w.mu.Unlock()
		return false
	}
	w.setStateLocked(statePolling)
	w.lastErr = nil
	w.wg.Add(1)
	w.mu.Unlock()

	if isReplay {
		w.log.Info("Starting indexing in replay mode", "handler_version", w.handler.HandlerVersionName())
	} else {
		w.log.Info("Starting indexing", "handler_version", w.handler.HandlerVersionName())
	}

	w.launch(func() {
		defer w.wg.Done()
		w.watch(isReplay)
	})
	return true
}

func (w *Watcher) watch(isReplay bool) {
	w.mu.Lock()
	if w.closed || w.inFlight {
		closed := w.closed
		w.mu.Unlock()
		w.log.Debug("Skipping watch iteration", "closed", closed, "in_flight", !closed, "replay", isReplay)
		return
	}
	if w.state == statePausing {
		w.stopTimerLocked()
		w.setStateLocked(stateIdle)
		w.mu.Unlock()
		w.m.IterationsTotal.WithLabelValues(metrics.OutcomePaused).Inc()
		w.log.Info("Indexing paused", "current_block", w.reader.CurrentBlockNumber())
		return
	}
	w.setStateLocked(statePolling)
	w.lastErr = nil
	w.inFlight = true
	w.mu.Unlock()

	started := time.Now()
	paused, err := w.checkForBlocks(w.ctx, isReplay)
	elapsed := time.Since(started)
	w.m.IterationDurationMS.Observe(float64(elapsed.Milliseconds()))

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false

	switch {
	case w.closed:
		return
	case err != nil:
		w.setStateLocked(stateErrored)
		w.lastErr = err
		w.m.IterationsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		w.log.Error("Indexing unexpectedly paused due to an error", "current_block", w.reader.CurrentBlockNumber(), "err", err)
	case paused:
		w.setStateLocked(stateIdle)
		w.m.IterationsTotal.WithLabelValues(metrics.OutcomePaused).Inc()
		w.log.Info("Indexing paused", "current_block", w.reader.CurrentBlockNumber())
	default:
		w.m.IterationsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		w.scheduleLocked(max(0, w.pollInterval-elapsed))
	}
}

// checkForBlocks hands every new block up to the reader's head to the
// handler. The first pass always fetches, since readers may only learn about
// a new head while fetching. It reports paused when a pause request stopped
// the batch.
func (w *Watcher) checkForBlocks(ctx context.Context, isReplay bool) (bool, error) {
	var head uint64
	for head == 0 || w.reader.CurrentBlockNumber() < head {
		if w.pauseRequested() {
			return true, nil
		}

		next, err := w.reader.NextBlock(ctx)
		if err != nil {
			return false, apperr.NewWatcherErr("failed to read next block", err)
		}
		if next == nil || next.Block == nil || !next.Meta.IsNewBlock {
			break
		}

		number := next.Block.Number()
		resumeFrom, err := w.handler.HandleBlock(ctx, next, isReplay)
		if err != nil {
			return false, apperr.NewWatcherErr(fmt.Sprintf("failed to handle block %d", number), err)
		}
		w.m.BlocksDispatchedTotal.WithLabelValues(metrics.Mode(isReplay)).Inc()

		if resumeFrom > 0 {
			w.log.Info("Rewinding reader on handler request", "block", number, "resume_from", resumeFrom)
			if err := w.reader.SeekToBlock(ctx, resumeFrom-1); err != nil {
				return false, apperr.NewWatcherErr(fmt.Sprintf("failed to seek reader to block %d", resumeFrom-1), err)
			}
			w.m.RewindsTotal.Inc()
		}

		head = w.reader.HeadBlockNumber()
		w.m.HeadBlock.Set(float64(head))
		w.m.CurrentBlock.Set(float64(w.reader.CurrentBlockNumber()))
		w.log.Trace("Dispatched block", "number", number, "hash", next.Block.Hash.Hex(), "head", head, "replay", isReplay)
	}
	return false, nil
}

func (w *Watcher) pauseRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed || w.state == statePausing
}

func (w *Watcher) scheduleLocked(delay time.Duration) {
	w.stopTimerLocked()
	w.wg.Add(1)
	w.timer = time.AfterFunc(delay, func() {
		defer w.wg.Done()
		w.watch(false)
	})
}

func (w *Watcher) stopTimerLocked() {
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
}

func (w *Watcher) setStateLocked(s loopState) {
	w.state = s
	for _, candidate := range loopStates {
		v := 0.0
		if candidate == s {
			v = 1
		}
		w.m.State.WithLabelValues(candidate.String()).Set(v)
	}
}
