package audio

import (
	"context"
	"io"
	"time"

	log "log/slog"
)

// Speaker matches the turn controller's speech synthesizer.
type Speaker interface {
	Speak(ctx context.Context, text string, done func(error)) error
	Stop() error
}

// DuckingSpeaker lowers other audio for as long as next is speaking.
type DuckingSpeaker struct {
	next   Speaker
	ducker *Ducker
	factor float64
	fade   time.Duration
}

func NewDuckingSpeaker(next Speaker, ducker *Ducker, factor float64, fade time.Duration) *DuckingSpeaker {
	return &DuckingSpeaker{next: next, ducker: ducker, factor: factor, fade: fade}
}

// Speak returns immediately; ducking and the start of playback happen in
// the background and any failure is reported through done.
func (s *DuckingSpeaker) Speak(ctx context.Context, text string, done func(error)) error {
	go func() {
		if err := s.ducker.DuckOthers(ctx, s.factor, s.fade); err != nil {
			log.Warn("Failed to duck other audio", "err", err)
		}

		finish := func(err error) {
			s.restore()
			done(err)
		}

		if err := ctx.Err(); err != nil {
			finish(err)
			return
		}
		if err := s.next.Speak(ctx, text, finish); err != nil {
			finish(err)
		}
	}()
	return nil
}

func (s *DuckingSpeaker) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.ducker.UnduckOthers(ctx, s.fade); err != nil {
		log.Warn("Failed to restore other audio", "err", err)
	}
}

func (s *DuckingSpeaker) Stop() error {
	return s.next.Stop()
}

func (s *DuckingSpeaker) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
