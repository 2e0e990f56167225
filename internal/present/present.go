// Package present reveals response text one character at a time so the
// whole string appears over a constant duration regardless of its length.
package present

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultDuration is how long a full reveal takes.
const DefaultDuration = 1250 * time.Millisecond

// Sink receives the reveal. Prefix is called with every growing prefix of
// the text, Complete once after the last one. Both run on the reveal
// goroutine, callers that own a UI thread must hand them over themselves.
type Sink struct {
	Prefix   func(prefix string)
	Complete func()
}

type Option func(*Presenter)

// WithDuration overrides [DefaultDuration].
func WithDuration(d time.Duration) Option {
	return func(p *Presenter) {
		if d > 0 {
			p.total = d
		}
	}
}

type Presenter struct {
	total time.Duration
}

func New(opts ...Option) *Presenter {
	p := &Presenter{total: DefaultDuration}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay returns the pause before each of n characters.
func (p *Presenter) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := p.total / time.Duration(n)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

// Reveal is a single, non restartable reveal.
type Reveal struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Present starts revealing text. An empty text completes immediately on the
// calling goroutine without starting a timer.
func (p *Presenter) Present(ctx context.Context, text string, sink Sink) *Reveal {
	r := &Reveal{done: make(chan struct{})}

	n := utf8.RuneCountInString(text)
	if n == 0 {
		r.cancel = func() {}
		close(r.done)
		if sink.Complete != nil {
			sink.Complete()
		}
		return r
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx, text, p.Delay(n), sink)

	return r
}

func (r *Reveal) run(ctx context.Context, text string, delay time.Duration, sink Sink) {
	defer close(r.done)
	defer r.cancel()

	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for i := range text {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, size := utf8.DecodeRuneInString(text[i:])
		if sink.Prefix != nil {
			sink.Prefix(text[:i+size])
		}
	}

	if ctx.Err() != nil {
		return
	}
	if sink.Complete != nil {
		sink.Complete()
	}
}

// Cancel stops the reveal. Complete is not called for a cancelled reveal
// unless it already ran.
func (r *Reveal) Cancel() {
	if r == nil {
		return
	}
	r.once.Do(r.cancel)
}

// Done is closed once the reveal goroutine has exited.
func (r *Reveal) Done() <-chan struct{} {
	return r.done
}
