package audio

import (
	"context"
	"time"

	log "log/slog"

	"github.com/gordonklaus/portaudio"

	"zegion/internal/capture"
)

type RecorderOption func(*Recorder)

// WithLimits sets the longest utterance and how long to wait for speech to
// begin.
func WithLimits(maxDuration, noSpeech time.Duration) RecorderOption {
	return func(r *Recorder) {
		if maxDuration > 0 {
			r.maxDuration = maxDuration
		}
		if noSpeech > 0 {
			r.noSpeech = noSpeech
		}
	}
}

// WithThreshold sets the RMS level above which a frame counts as speech.
func WithThreshold(rms float64) RecorderOption {
	return func(r *Recorder) { r.threshold = rms }
}

// Recorder records one utterance from the default input device, from the
// first voiced frame until 600ms of silence.
type Recorder struct {
	threshold   float64
	trailing    time.Duration
	maxDuration time.Duration
	noSpeech    time.Duration
}

var _ capture.Source = (*Recorder)(nil)

func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		threshold:   0.015,
		trailing:    600 * time.Millisecond,
		maxDuration: 10 * time.Second,
		noSpeech:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

func (r *Recorder) Record(ctx context.Context, onSpeech func()) ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	det := newDetector(r.threshold, r.trailing, r.noSpeech, r.maxDuration)
	started := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		switch det.feed(buf) {
		case skip:
			continue
		case gaveUp:
			return nil, capture.ErrNoSpeech
		case finished:
			return out, nil
		case truncate:
			log.Debug("Utterance truncated", "max", r.maxDuration)
			return append(out, buf...), nil
		}

		if !started {
			started = true
			if onSpeech != nil {
				onSpeech()
			}
		}
		out = append(out, buf...)
	}
}
