package handler

// Config holds the block handler settings.
//
// VersionName identifies the handler logic that produced the stored index
// state. It is persisted with every commit and attached to published events.
type Config struct {
	VersionName string `validate:"required,max=64"`
}
