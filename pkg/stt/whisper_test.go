package stt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNoise(t *testing.T) {
	for text, want := range map[string]bool{
		"[BLANK_AUDIO]":    true,
		"(wind blowing)":   true,
		"open the camera":  false,
		"[partial":         false,
		"what time (now)?": false,
	} {
		assert.Equal(t, want, isNoise(text), text)
	}
}

func TestNewTranscriber_EmptyPath(t *testing.T) {
	_, err := NewTranscriber("", Options{})
	require.Error(t, err)
}

func TestTranscribePCM_NoSamples(t *testing.T) {
	tr := &Transcriber{}

	_, err := tr.TranscribePCM(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = tr.Transcribe(context.Background(), []float32{})
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestTranscribePCM_Closed(t *testing.T) {
	tr := &Transcriber{}
	require.NoError(t, tr.Close())

	_, err := tr.TranscribePCM(context.Background(), []float32{0.1}, Options{})
	assert.Error(t, err)
}
