package apperr

import "fmt"

const (
	invalidArgumentCode = "INVALID_ARGUMENT"
	internalErrorCode   = "INTERNAL_ERROR"
	watcherCode         = "WATCHER_ERROR"
	blockReadCode       = "BLOCKREAD_ERROR"
	blockHandleCode     = "BLOCKHANDLE_ERROR"
	indexStateCode      = "INDEXSTATE_ERROR"
	blockPublishCode    = "BLOCKPUBLISH_ERROR"
)

type messageCause struct {
	Msg string
	Err error
}

func (e *messageCause) Message() string { return e.Msg }
func (e *messageCause) Cause() error    { return e.Err }
func (e *messageCause) Unwrap() error   { return e.Err }

func formatError(code, msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, msg)
}

type InvalidArgErr struct {
	messageCause
}

func NewInvalidArgErr(msg string, cause error) *InvalidArgErr {
	return &InvalidArgErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InvalidArgErr) Error() string { return formatError(invalidArgumentCode, e.Msg, e.Err) }
func (e *InvalidArgErr) Code() string  { return invalidArgumentCode }

type InternalErr struct {
	messageCause
}

func NewInternalErr(msg string, cause error) *InternalErr {
	return &InternalErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InternalErr) Error() string { return formatError(internalErrorCode, e.Msg, e.Err) }
func (e *InternalErr) Code() string  { return internalErrorCode }

// WatcherErr is stored as the watcher's last error when a loop iteration fails.
type WatcherErr struct {
	messageCause
}

func NewWatcherErr(msg string, cause error) *WatcherErr {
	return &WatcherErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *WatcherErr) Error() string { return formatError(watcherCode, e.Msg, e.Err) }
func (e *WatcherErr) Code() string  { return watcherCode }

type BlockReadErr struct {
	messageCause
}

func NewBlockReadErr(msg string, cause error) *BlockReadErr {
	return &BlockReadErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockReadErr) Error() string { return formatError(blockReadCode, e.Msg, e.Err) }
func (e *BlockReadErr) Code() string  { return blockReadCode }

type BlockHandleErr struct {
	messageCause
}

func NewBlockHandleErr(msg string, cause error) *BlockHandleErr {
	return &BlockHandleErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockHandleErr) Error() string { return formatError(blockHandleCode, e.Msg, e.Err) }
func (e *BlockHandleErr) Code() string  { return blockHandleCode }

type IndexStateErr struct {
	messageCause
}

func NewIndexStateErr(msg string, cause error) *IndexStateErr {
	return &IndexStateErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *IndexStateErr) Error() string { return formatError(indexStateCode, e.Msg, e.Err) }
func (e *IndexStateErr) Code() string  { return indexStateCode }

type BlockPublishErr struct {
	messageCause
}

func NewBlockPublishErr(msg string, cause error) *BlockPublishErr {
	return &BlockPublishErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *BlockPublishErr) Error() string { return formatError(blockPublishCode, e.Msg, e.Err) }
func (e *BlockPublishErr) Code() string  { return blockPublishCode }
