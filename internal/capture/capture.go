// Package capture turns one activation of a speech recognizer into exactly
// one terminal outcome: a transcript or an error.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "log/slog"
)

// ErrPermissionRequired is returned by [Capture.Start] when the microphone
// permission is missing. The permission has been requested by then; the
// caller starts capture again once it is granted.
var ErrPermissionRequired = errors.New("capture: microphone permission required")

// Kind classifies capture failures.
type Kind int

const (
	NoMatch Kind = iota
	Network
	Timeout
	Other
)

func (k Kind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error is a failed capture.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "capture: " + e.Kind.String()
	}
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of a capture error, Other for anything that is not
// an [*Error].
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Other
}

// Events is the event stream of a recognizer. Any field may be nil.
type Events struct {
	Ready   func()
	Begin   func()
	End     func()
	Results func(candidates []string)
	Error   func(err error)
}

// Recognizer is a speech-to-text service. Listen returns once listening has
// been started; results arrive through ev.
type Recognizer interface {
	Listen(ctx context.Context, ev Events) error
	Stop() error
	Close() error
}

// Permissions is the platform permission system.
type Permissions interface {
	MicrophoneGranted() bool
	RequestMicrophone()
}

// Handler receives the outcome of one capture. Exactly one of Transcript or
// Failed is called. Ready is called when capture became active, Ended when
// it stopped for whatever reason, always before Transcript or Failed.
type Handler struct {
	Ready      func()
	Ended      func()
	Transcript func(text string)
	Failed     func(err error)
}

type Capture struct {
	rec   Recognizer
	perms Permissions
}

// New returns a Capture on rec. perms may be nil when the platform does not
// gate the microphone.
func New(rec Recognizer, perms Permissions) *Capture {
	return &Capture{rec: rec, perms: perms}
}

func (c *Capture) Start(ctx context.Context, h Handler) error {
	if c.perms != nil && !c.perms.MicrophoneGranted() {
		c.perms.RequestMicrophone()
		return ErrPermissionRequired
	}

	var (
		endOnce  sync.Once
		doneOnce sync.Once
	)
	ended := func() {
		endOnce.Do(func() {
			if h.Ended != nil {
				h.Ended()
			}
		})
	}
	fail := func(err error) {
		doneOnce.Do(func() {
			ended()
			if h.Failed != nil {
				h.Failed(err)
			}
		})
	}
	succeed := func(text string) {
		doneOnce.Do(func() {
			ended()
			if h.Transcript != nil {
				h.Transcript(text)
			}
		})
	}

	err := c.rec.Listen(ctx, Events{
		Ready: func() {
			if h.Ready != nil {
				h.Ready()
			}
		},
		Begin: func() { log.Debug("Speech detected") },
		End:   ended,
		Results: func(candidates []string) {
			if len(candidates) == 0 || strings.TrimSpace(candidates[0]) == "" {
				fail(&Error{Kind: NoMatch})
				return
			}
			succeed(strings.TrimSpace(candidates[0]))
		},
		Error: func(err error) {
			var ce *Error
			if !errors.As(err, &ce) {
				err = &Error{Kind: Other, Err: err}
			}
			fail(err)
		},
	})
	if err != nil {
		return fmt.Errorf("capture: start listening: %w", err)
	}

	return nil
}

func (c *Capture) Stop() error {
	return c.rec.Stop()
}

func (c *Capture) Close() error {
	return c.rec.Close()
}
