package filesystem

import "sync/atomic"

// Observer records filesystem operation metrics. The metrics package provides
// the implementation so that filesystem does not import it.
type Observer interface {
	// ObserveOperation records duration and error status for one operation.
	// volume is the resolved label ("storage", "tiles", "database"); operation
	// is one of "stat", "open", "read", "readdir".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

type observerBox struct{ o Observer }

var defaultObserver atomic.Pointer[observerBox]

// SetObserver installs the package-level observer. Passing nil disables
// recording. Safe to call while scans run.
func SetObserver(o Observer) {
	defaultObserver.Store(&observerBox{o: o})
}

// observe returns the installed observer or nil.
func observe() Observer {
	if b := defaultObserver.Load(); b != nil {
		return b.o
	}
	return nil
}
