package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zegion/internal/capture"
)

func frames(level float32, n int) []float32 {
	out := make([]float32, n*frameSize)
	for i := range out {
		if i%2 == 0 {
			out[i] = level
		} else {
			out[i] = -level
		}
	}
	return out
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestFrameRMS(t *testing.T) {
	assert.Zero(t, frameRMS(nil))
	assert.InDelta(t, 0.5, frameRMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}

func TestDetector_FinishesAfterTrailingSilence(t *testing.T) {
	d := newDetector(0.1, 100*time.Millisecond, time.Second, 10*time.Second)
	loud := frames(0.5, 1)[:frameSize]
	quiet := make([]float32, frameSize)

	assert.Equal(t, skip, d.feed(quiet))
	assert.Equal(t, keep, d.feed(loud))
	for range 4 {
		assert.Equal(t, keep, d.feed(quiet))
	}
	assert.Equal(t, finished, d.feed(quiet))
}

func TestDetector_GivesUpWithoutSpeech(t *testing.T) {
	d := newDetector(0.1, 100*time.Millisecond, 100*time.Millisecond, 10*time.Second)
	quiet := make([]float32, frameSize)

	var last step
	for range 5 {
		last = d.feed(quiet)
	}
	assert.Equal(t, gaveUp, last)
}

func TestDetector_Truncates(t *testing.T) {
	d := newDetector(0.1, time.Second, 0, 60*time.Millisecond)
	loud := frames(0.5, 1)

	assert.Equal(t, keep, d.feed(loud))
	assert.Equal(t, keep, d.feed(loud))
	assert.Equal(t, truncate, d.feed(loud))
}

func TestEndpoint(t *testing.T) {
	pcm := concat(frames(0, 10), frames(0.3, 5), frames(0, 40))

	spoke := 0
	out, err := endpoint(pcm, 0.1, 0, func() { spoke++ })
	require.NoError(t, err)

	assert.Equal(t, 1, spoke)
	// Voiced frames plus the trailing silence short of the cutoff.
	assert.Len(t, out, (5+29)*frameSize)
}

func TestEndpoint_Silence(t *testing.T) {
	_, err := endpoint(frames(0, 20), 0.1, 0, nil)
	assert.ErrorIs(t, err, capture.ErrNoSpeech)
}
