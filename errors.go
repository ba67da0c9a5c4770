package rpccache

import "errors"

var (
	ErrNilStore   = errors.New("rpccache: store is required")
	ErrNilInvoker = errors.New("rpccache: invoker is nil")
)
