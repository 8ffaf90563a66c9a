package port

import "github.com/pancudaniel7/blockwatch-service/internal/core/entity"

// WatcherControl is the control surface exposed to operators.
type WatcherControl interface {
	Start() bool
	Pause() bool
	Replay() bool
	Info() entity.WatcherInfo
}
