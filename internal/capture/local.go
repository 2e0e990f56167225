package capture

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	log "log/slog"
)

// ErrNoSpeech is returned by a [Source] when nothing but silence was heard
// before it gave up.
var ErrNoSpeech = errors.New("no speech detected")

var errListening = errors.New("capture: recognizer already listening")

// Source produces one utterance of mono 16 kHz PCM. onSpeech is called when
// speech is first detected.
type Source interface {
	Record(ctx context.Context, onSpeech func()) ([]float32, error)
}

// Transcriber converts PCM into ranked candidate transcripts.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) ([]string, error)
}

// LocalRecognizer is a [Recognizer] that records from src and transcribes
// on this machine.
type LocalRecognizer struct {
	src Source
	tr  Transcriber

	mu  sync.Mutex
	cur *session
	wg  sync.WaitGroup
}

// session is one Listen; done is closed once its goroutine has returned
// and the recognizer is free again.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Recognizer = (*LocalRecognizer)(nil)

func NewLocal(src Source, tr Transcriber) *LocalRecognizer {
	return &LocalRecognizer{src: src, tr: tr}
}

func (l *LocalRecognizer) Listen(ctx context.Context, ev Events) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur != nil {
		return errListening
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	l.cur = s

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.release(s)

		l.listen(ctx, ev)
	}()

	return nil
}

func (l *LocalRecognizer) listen(ctx context.Context, ev Events) {
	call(ev.Ready)

	pcm, err := l.src.Record(ctx, func() { call(ev.Begin) })
	call(ev.End)
	if err != nil {
		log.Debug("Recording failed", "err", err)
		emitError(ev, classify(err))
		return
	}

	log.Debug("Recorded", "samples", len(pcm))

	candidates, err := l.tr.Transcribe(ctx, pcm)
	if err != nil {
		emitError(ev, classify(err))
		return
	}

	if ev.Results != nil {
		ev.Results(candidates)
	}
}

func (l *LocalRecognizer) release(s *session) {
	s.cancel()

	l.mu.Lock()
	if l.cur == s {
		l.cur = nil
	}
	l.mu.Unlock()

	close(s.done)
}

// Stop cancels the capture in progress and returns once the recognizer can
// listen again. It must not be called from an event callback.
func (l *LocalRecognizer) Stop() error {
	l.mu.Lock()
	s := l.cur
	l.mu.Unlock()

	if s != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Close stops any capture in progress, waits for it and closes the source
// and transcriber if they hold resources.
func (l *LocalRecognizer) Close() error {
	_ = l.Stop()
	l.wg.Wait()

	var errs []error
	for _, v := range []any{l.src, l.tr} {
		if c, ok := v.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func classify(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrNoSpeech), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Err: err}
	case errors.As(err, &netErr):
		return &Error{Kind: Network, Err: err}
	default:
		return &Error{Kind: Other, Err: err}
	}
}

func emitError(ev Events, err error) {
	if ev.Error != nil {
		ev.Error(err)
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
