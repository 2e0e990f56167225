package audio

import (
	"context"
	"os"
	"time"

	log "log/slog"

	"zegion/internal/capture"
	"zegion/pkg/audioconv"
)

// FileSource plays a recorded utterance instead of the microphone. The same
// endpointing as the live recorder applies.
type FileSource struct {
	Path      string
	Threshold float64
	Max       time.Duration
}

var _ capture.Source = (*FileSource)(nil)

func (f *FileSource) Record(ctx context.Context, onSpeech func()) ([]float32, error) {
	pcm, err := audioconv.DecodeFile(ctx, f.Path, audioconv.Options{})
	if err != nil {
		return nil, err
	}
	return endpoint(pcm, f.Threshold, f.Max, onSpeech)
}

// endpoint runs pcm through the detector frame by frame and returns the
// voiced part.
func endpoint(pcm []float32, threshold float64, maxLen time.Duration, onSpeech func()) ([]float32, error) {
	if threshold <= 0 {
		threshold = 0.015
	}
	if maxLen <= 0 {
		maxLen = 10 * time.Second
	}

	det := newDetector(threshold, 600*time.Millisecond, 0, maxLen)
	var out []float32

	for off := 0; off+frameSize <= len(pcm); off += frameSize {
		frame := pcm[off : off+frameSize]

		switch det.feed(frame) {
		case skip:
			continue
		case gaveUp:
			return nil, capture.ErrNoSpeech
		case finished:
			return out, nil
		case truncate:
			return append(out, frame...), nil
		}

		if out == nil && onSpeech != nil {
			onSpeech()
		}
		out = append(out, frame...)
	}

	if len(out) == 0 {
		return nil, capture.ErrNoSpeech
	}
	return out, nil
}

// FilePermission grants capture while the recorded utterance is readable.
type FilePermission struct {
	Path string
}

var _ capture.Permissions = FilePermission{}

func (p FilePermission) MicrophoneGranted() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}

func (p FilePermission) RequestMicrophone() {
	log.Warn("Input file is not readable", "path", p.Path)
}
