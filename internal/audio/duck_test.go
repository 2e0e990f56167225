package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 52429 /  80% / -5.81 dB,   front-right: 52429 /  80% / -5.81 dB
	Properties:
		application.name = "zegion"
Sink Input #bogus
	Volume: front-left: 1 / 10%
`

// fakePactl serves a fixed listing and records volume changes.
type fakePactl struct {
	mu      sync.Mutex
	listing string
	listErr error
	sets    []string
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if args[0] == "list" {
		return []byte(f.listing), f.listErr
	}
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func (f *fakePactl) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func newTestDucker(p *fakePactl) *Ducker {
	d := NewDucker([]string{"zegion"}, 10)
	d.pactl = p.run
	d.sleep = func(time.Duration) {}
	return d
}

func TestParseSinkInputs(t *testing.T) {
	streams := parseSinkInputs(sinkInputs)
	require.Len(t, streams, 2)
	assert.Equal(t, streamInfo{ID: 41, Volume: 100, AppName: "Firefox"}, streams[0])
	assert.Equal(t, streamInfo{ID: 42, Volume: 80, AppName: "zegion"}, streams[1])

	assert.Empty(t, parseSinkInputs(""))
}

func TestDucker_DucksOnlyForeignStreams(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := newTestDucker(p)

	require.NoError(t, d.DuckOthers(context.Background(), 0.3, 0))
	assert.Equal(t, []string{"41 30%"}, p.calls())

	// Second duck while active is a no-op.
	require.NoError(t, d.DuckOthers(context.Background(), 0.3, 0))
	assert.Len(t, p.calls(), 1)
}

func TestDucker_RespectsMinimumVolume(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := newTestDucker(p)

	require.NoError(t, d.DuckOthers(context.Background(), 0.01, 0))
	assert.Equal(t, []string{"41 10%"}, p.calls())
}

func TestDucker_FadesInSteps(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := newTestDucker(p)

	require.NoError(t, d.DuckOthers(context.Background(), 0.5, 40*time.Millisecond))
	assert.Equal(t, []string{"41 100%", "41 88%", "41 75%", "41 63%", "41 50%"}, p.calls())
}

func TestDucker_UnduckRestoresOriginal(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := newTestDucker(p)

	// Unduck without a prior duck does nothing.
	require.NoError(t, d.UnduckOthers(context.Background(), 0))
	assert.Empty(t, p.calls())

	require.NoError(t, d.DuckOthers(context.Background(), 0.3, 0))
	require.NoError(t, d.UnduckOthers(context.Background(), 0))
	assert.Equal(t, []string{"41 30%", "41 100%"}, p.calls())
}

func TestDucker_ListError(t *testing.T) {
	p := &fakePactl{listErr: errors.New("no pulse")}
	d := newTestDucker(p)

	err := d.DuckOthers(context.Background(), 0.3, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pactl list sink-inputs")
}

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	stopped int
	refuse  error
	closed  bool
}

func (s *fakeSpeaker) Speak(_ context.Context, text string, done func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse != nil {
		return s.refuse
	}
	s.spoken = append(s.spoken, text)
	go done(nil)
	return nil
}

func (s *fakeSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *fakeSpeaker) Close() error {
	s.closed = true
	return nil
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("speech never finished")
		return nil
	}
}

func TestDuckingSpeaker_DucksAroundSpeech(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	next := &fakeSpeaker{}
	s := NewDuckingSpeaker(next, newTestDucker(p), 0.3, 0)

	done := make(chan error, 1)
	require.NoError(t, s.Speak(context.Background(), "hello", func(err error) { done <- err }))
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, []string{"hello"}, next.spoken)
	assert.Equal(t, []string{"41 30%", "41 100%"}, p.calls())
}

func TestDuckingSpeaker_RefusalIsReportedThroughDone(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	next := &fakeSpeaker{refuse: fmt.Errorf("busy")}
	s := NewDuckingSpeaker(next, newTestDucker(p), 0.3, 0)

	done := make(chan error, 1)
	require.NoError(t, s.Speak(context.Background(), "hello", func(err error) { done <- err }))
	assert.EqualError(t, waitDone(t, done), "busy")
	assert.Equal(t, []string{"41 30%", "41 100%"}, p.calls())
}

func TestDuckingSpeaker_CancelledBeforeSpeaking(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	next := &fakeSpeaker{}
	s := NewDuckingSpeaker(next, newTestDucker(p), 0.3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	require.NoError(t, s.Speak(ctx, "hello", func(err error) { done <- err }))
	assert.ErrorIs(t, waitDone(t, done), context.Canceled)
	assert.Empty(t, next.spoken)
}

func TestDuckingSpeaker_StopAndClose(t *testing.T) {
	next := &fakeSpeaker{}
	s := NewDuckingSpeaker(next, newTestDucker(&fakePactl{}), 0.3, 0)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, next.stopped)
	assert.True(t, next.closed)
}
