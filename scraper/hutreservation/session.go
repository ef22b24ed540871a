package hutreservation

import (
	"context"
	"errors"
	"time"
)

// ErrSession marks failures of the browser session itself, as opposed to
// pages that loaded but did not show what the probe waited for
var ErrSession = errors.New("calendar session failure")

// Session is one interactive page of the reservation site. It is stateful
// per hut: a probe owns its session for the whole run and never shares it.
type Session interface {
	// Open navigates to url
	Open(ctx context.Context, url string) error
	// SetField replaces the text of the input matched by selector
	SetField(ctx context.Context, selector, text string) error
	// Submit presses enter inside the input matched by selector
	Submit(ctx context.Context, selector string) error
	// WaitFor blocks until selector is present or timeout elapses.
	// A timeout is reported as (false, nil).
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Markup returns the currently rendered page
	Markup(ctx context.Context) (string, error)
	// Close releases the session
	Close() error
}

// SessionFactory hands out fresh sessions, one per probe
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Generational is implemented by sessions living inside a restartable
// browser process; the generation tells which process that was
type Generational interface {
	Generation() uint64
}
