package observer

import "github.com/pingcap/errors"

var (
	// ErrObserverCallbackFailed is logged when an observer panics inside Update.
	ErrObserverCallbackFailed = errors.New("observer callback failed")
	ErrAlreadyStarted         = errors.New("subject loop is already started")
	ErrInvalidInterval        = errors.New("notify interval must be positive")
)
