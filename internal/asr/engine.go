package asr

import (
	"context"
	"errors"
)

// ErrUnsupportedLanguage aborts startup of a single-language engine run
// under any other active language. Fatal, not recoverable.
var ErrUnsupportedLanguage = errors.New("engine does not support the active language")

// Engine is a recognition backend. DecodeStream executes synchronously on
// the caller's goroutine and blocks until the session terminates; it must
// not be called concurrently for the same device. The signal hooks are
// called from other flows while a decode is blocked.
type Engine interface {
	// Start performs backend startup. Model-load and language failures are
	// fatal here, never deferred to decode time.
	Start(ctx context.Context) error
	// Stop tears the backend down.
	Stop()
	// DecodeStream runs one recognition attempt. A nil Result with nil
	// error means nothing was recognized, which is a normal outcome.
	DecodeStream(ctx context.Context, session *Session) (*Result, error)

	OnVadUp()
	OnVadDown()
	OnStartListening(session *Session)
	OnToggleOff(deviceUID string)
}

// Notifier receives partial recognition output while a decode is running.
// Implementations are fire-and-forget: they must neither block nor panic
// back into the decode loop.
type Notifier interface {
	PartialTextCaptured(session *Session, text string, likelihood, seconds float64)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(session *Session, text string, likelihood, seconds float64)

func (f NotifierFunc) PartialTextCaptured(session *Session, text string, likelihood, seconds float64) {
	f(session, text, likelihood, seconds)
}
