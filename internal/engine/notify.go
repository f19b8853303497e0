package engine

import (
	"log/slog"

	"github.com/gridsignal/oadr2ven/internal/oadr"
)

// notify fires the registered callback with the pass's updated and removed
// events. Invoked once per pass, after decisions are computed and before the
// store commit. Callback faults are contained here: an error or panic is
// logged and the pass proceeds.
func (e *Engine) notify(updated, removed map[string]*oadr.Event) {
	if e.callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("event callback panicked", "panic", r)
		}
	}()

	if err := e.callback(updated, removed); err != nil {
		slog.Warn("event callback failed", "error", err)
	}
}
