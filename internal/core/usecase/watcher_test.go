package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestWatcher(t *testing.T, r *fakeReader, h *fakeHandler, interval time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(stubLogger{}, r, h, interval)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

// newSyncWatcher runs iterations started by Start and Replay on the caller's goroutine.
func newSyncWatcher(t *testing.T, r *fakeReader, h *fakeHandler) *Watcher {
	t.Helper()
	w := newTestWatcher(t, r, h, time.Hour)
	w.launch = func(fn func()) { fn() }
	return w
}

func hasPendingTimer(w *Watcher) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func waitScheduled(t *testing.T, w *Watcher) {
	t.Helper()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.inFlight && w.timer != nil
	}, waitFor, tick)
}

func TestNewWatcher_Validation(t *testing.T) {
	r, h := &fakeReader{}, &fakeHandler{}
	cases := []struct {
		name     string
		build    func() (*Watcher, error)
		wantFail bool
	}{
		{"nil logger", func() (*Watcher, error) { return NewWatcher(nil, r, h, time.Second) }, true},
		{"nil reader", func() (*Watcher, error) { return NewWatcher(stubLogger{}, nil, h, time.Second) }, true},
		{"nil handler", func() (*Watcher, error) { return NewWatcher(stubLogger{}, r, nil, time.Second) }, true},
		{"negative interval", func() (*Watcher, error) { return NewWatcher(stubLogger{}, r, h, -time.Second) }, true},
		{"zero interval", func() (*Watcher, error) { return NewWatcher(stubLogger{}, r, h, 0) }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := tc.build()
			if tc.wantFail {
				var ia *apperr.InvalidArgErr
				require.ErrorAs(t, err, &ia)
				require.Nil(t, w)
				return
			}
			require.NoError(t, err)
			w.Close()
		})
	}
}

func TestWatcher_StartProcessesBlocksInOrderAndReschedules(t *testing.T) {
	r := &fakeReader{head: 5}
	h := &fakeHandler{}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, h.numbers())
	require.True(t, hasPendingTimer(w))

	info := w.Info()
	require.Equal(t, entity.StatusIndexing, info.Status)
	require.Equal(t, uint64(5), info.LastProcessedBlockNumber)
	require.Equal(t, testBlock(5).Hash, info.LastProcessedBlockHash)
	require.Equal(t, "v1", info.HandlerVersionName)
	require.NoError(t, info.Error)

	require.False(t, w.Start(), "already running")

	r.setHead(8)
	w.Watch(false)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, h.numbers())
}

func TestWatcher_KeepsTailingWhenHeadMovesOnlyOnFetch(t *testing.T) {
	r := &fakeReader{lazyHead: true, tip: 3}
	h := &fakeHandler{}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2, 3}, h.numbers())

	w.Watch(false)
	require.Equal(t, []uint64{1, 2, 3}, h.numbers())
	require.True(t, hasPendingTimer(w))

	r.setTip(6)
	w.Watch(false)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, h.numbers())
	require.Equal(t, uint64(6), r.HeadBlockNumber())
	require.Equal(t, entity.StatusIndexing, w.Info().Status)
}

func TestWatcher_PollsPickUpBlocksAfterFirstDrain(t *testing.T) {
	r := &fakeReader{lazyHead: true, tip: 2}
	h := &fakeHandler{}
	w := newTestWatcher(t, r, h, tick)

	require.True(t, w.Start())
	require.Eventually(t, func() bool { return len(h.numbers()) == 2 }, waitFor, tick)

	r.setTip(5)
	require.Eventually(t, func() bool { return len(h.numbers()) == 5 }, waitFor, tick)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, h.numbers())
}

func TestWatcher_WatchDuringIterationIsSkipped(t *testing.T) {
	r := &fakeReader{head: 2}
	entered := make(chan struct{})
	release := make(chan struct{})
	h := &fakeHandler{}
	h.onHandle = func(n uint64) {
		if n == 1 {
			close(entered)
			<-release
		}
	}
	log := &recordingLogger{}
	w, err := NewWatcher(log, r, h, time.Hour)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	require.True(t, w.Start())
	<-entered
	w.Watch(false)
	require.Contains(t, log.debugMessages(), "Skipping watch iteration")
	require.Empty(t, h.numbers())

	close(release)
	require.Eventually(t, func() bool { return len(h.numbers()) == 2 }, waitFor, tick)
}

func TestWatcher_PauseWhenNotRunning(t *testing.T) {
	w := newSyncWatcher(t, &fakeReader{head: 1}, &fakeHandler{})
	require.False(t, w.Pause())
	require.Equal(t, entity.StatusPaused, w.Info().Status)
}

func TestWatcher_HandlerRewindSeeksReader(t *testing.T) {
	r := &fakeReader{head: 6}
	h := &fakeHandler{rewinds: map[uint64]uint64{5: 3}}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.Equal(t, []uint64{2}, r.seekCalls())
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 3, 4, 5, 6}, h.numbers())
	require.Equal(t, uint64(6), w.Info().LastProcessedBlockNumber)
}

func TestWatcher_ReaderErrorHaltsUntilRestart(t *testing.T) {
	r := &fakeReader{head: 5, failAt: 3}
	h := &fakeHandler{}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2}, h.numbers())
	require.False(t, hasPendingTimer(w))

	info := w.Info()
	require.Equal(t, entity.StatusPaused, info.Status)
	var we *apperr.WatcherErr
	require.ErrorAs(t, info.Error, &we)
	require.ErrorIs(t, info.Error, errReader)

	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, h.numbers())
	require.NoError(t, w.Info().Error)
}

func TestWatcher_HandlerError(t *testing.T) {
	handleErr := errors.New("store down")
	r := &fakeReader{head: 4}
	h := &fakeHandler{errAt: map[uint64]error{2: handleErr}}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.Equal(t, []uint64{1}, h.numbers())
	info := w.Info()
	require.Equal(t, entity.StatusPaused, info.Status)
	require.ErrorIs(t, info.Error, handleErr)
	require.Contains(t, info.Error.Error(), "failed to handle block 2")
}

func TestWatcher_SeekError(t *testing.T) {
	seekErr := errors.New("block not found")
	r := &fakeReader{head: 4, seekErr: seekErr}
	h := &fakeHandler{rewinds: map[uint64]uint64{3: 2}}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.ErrorIs(t, w.Info().Error, seekErr)
	require.Equal(t, []uint64{1, 2, 3}, h.numbers())
}

func TestWatcher_PauseMidBatchStopsBeforeNextFetch(t *testing.T) {
	r := &fakeReader{head: 10}
	h := &fakeHandler{}
	w := newSyncWatcher(t, r, h)
	h.onHandle = func(n uint64) {
		if n == 4 {
			require.True(t, w.Pause())
		}
	}

	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2, 3, 4}, h.numbers())
	require.Equal(t, uint64(4), r.CurrentBlockNumber())
	require.False(t, hasPendingTimer(w))
	require.Equal(t, entity.StatusPaused, w.Info().Status)

	h.onHandle = nil
	require.True(t, w.Start())
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, h.numbers())
}

func TestWatcher_PauseBetweenIterations(t *testing.T) {
	r := &fakeReader{head: 2}
	h := &fakeHandler{}
	w := newSyncWatcher(t, r, h)

	require.True(t, w.Start())
	require.True(t, w.Pause())
	require.Equal(t, entity.StatusPausing, w.Info().Status)
	require.False(t, w.Start(), "still running until the next iteration observes the pause")

	r.setHead(3)
	w.Watch(false)
	require.Equal(t, entity.StatusPaused, w.Info().Status)
	require.False(t, hasPendingTimer(w))
	require.Equal(t, []uint64{1, 2}, h.numbers())
}

func TestWatcher_StatusTransitionsWhileHandling(t *testing.T) {
	r := &fakeReader{head: 3}
	entered := make(chan struct{})
	release := make(chan struct{})
	h := &fakeHandler{}
	h.onHandle = func(n uint64) {
		if n == 1 {
			close(entered)
			<-release
		}
	}
	w := newTestWatcher(t, r, h, time.Hour)

	require.True(t, w.Start())
	<-entered
	require.Equal(t, entity.StatusIndexing, w.Info().Status)
	require.False(t, w.Start())
	require.False(t, w.Replay())

	require.True(t, w.Pause())
	require.Equal(t, entity.StatusPausing, w.Info().Status)

	close(release)
	require.Eventually(t, func() bool { return w.Info().Status == entity.StatusPaused }, waitFor, tick)
	require.Equal(t, []uint64{1}, h.numbers())
}

func TestWatcher_ReplayOnlyFlagsFirstIteration(t *testing.T) {
	r := &fakeReader{head: 3}
	h := &fakeHandler{}
	w := newTestWatcher(t, r, h, tick)

	require.True(t, w.Replay())
	require.Eventually(t, func() bool { return len(h.numbers()) == 3 }, waitFor, tick)
	waitScheduled(t, w)

	r.setHead(5)
	require.Eventually(t, func() bool { return len(h.numbers()) == 5 }, waitFor, tick)

	calls := h.calls()
	for i, c := range calls {
		require.Equal(t, i < 3, c.isReplay, "block %d", c.number)
	}
}

func TestWatcher_Close(t *testing.T) {
	r := &fakeReader{head: 2}
	w := newSyncWatcher(t, r, &fakeHandler{})

	require.True(t, w.Start())
	require.True(t, hasPendingTimer(w))

	w.Close()
	require.False(t, hasPendingTimer(w))
	require.Equal(t, entity.StatusPaused, w.Info().Status)
	require.False(t, w.Start())
	require.False(t, w.Replay())
	require.False(t, w.Pause())

	w.Watch(false)
	w.Close()
}

func TestWatcher_CloseKeepsLastError(t *testing.T) {
	r := &fakeReader{head: 3, failAt: 1}
	w := newSyncWatcher(t, r, &fakeHandler{})

	require.True(t, w.Start())
	w.Close()
	require.ErrorIs(t, w.Info().Error, errReader)
}

func TestWatcher_StateMachine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := &fakeReader{head: uint64(rapid.IntRange(0, 4).Draw(rt, "head"))}
		w, err := NewWatcher(stubLogger{}, r, &fakeHandler{}, time.Hour)
		require.NoError(rt, err)
		w.launch = func(fn func()) { fn() }
		defer w.Close()

		var running, pausing bool
		begin := func(ok bool) {
			require.Equal(rt, !running, ok)
			if ok {
				running, pausing = true, false
			}
		}

		rt.Repeat(map[string]func(*rapid.T){
			"start":  func(*rapid.T) { begin(w.Start()) },
			"replay": func(*rapid.T) { begin(w.Replay()) },
			"pause": func(*rapid.T) {
				ok := w.Pause()
				require.Equal(rt, running, ok)
				if ok {
					pausing = true
				}
			},
			"checkpoint": func(*rapid.T) {
				w.Watch(false)
				if pausing {
					running, pausing = false, false
				} else {
					running = true
				}
			},
			"": func(*rapid.T) {
				want := entity.StatusPaused
				switch {
				case pausing:
					want = entity.StatusPausing
				case running:
					want = entity.StatusIndexing
				}
				require.Equal(rt, want, w.Info().Status)
				require.Equal(rt, running, hasPendingTimer(w))
			},
		})
	})
}
