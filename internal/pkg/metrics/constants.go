package metrics

// Component label values used by app-level metrics.
const (
	ComponentWatcher = "watcher"
	ComponentReader  = "reader"
	ComponentHandler = "handler"
	ComponentRedis   = "redis"
	ComponentKafka   = "kafka"
)

// Mode label values shared by the watcher and handler metrics.
const (
	ModeLive   = "live"
	ModeReplay = "replay"
)

// Mode maps a replay flag to its label value.
func Mode(isReplay bool) string {
	if isReplay {
		return ModeReplay
	}
	return ModeLive
}
