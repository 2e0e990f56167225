package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zegion/internal/capture"
	"zegion/internal/present"
)

type fakeUI struct {
	mu          sync.Mutex
	texts       []string
	errs        []string
	notes       []string
	pulseStarts int
	pulseStops  int
}

func (u *fakeUI) ShowText(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.texts = append(u.texts, text)
}

func (u *fakeUI) ShowError(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.errs = append(u.errs, msg)
}

func (u *fakeUI) Notify(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notes = append(u.notes, msg)
}

func (u *fakeUI) StartPulse() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pulseStarts++
}

func (u *fakeUI) StopPulse() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pulseStops++
}

func (u *fakeUI) snapshot() (texts, errs, notes []string, starts, stops int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.texts...), append([]string(nil), u.errs...),
		append([]string(nil), u.notes...), u.pulseStarts, u.pulseStops
}

func (u *fakeUI) lastText() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.texts) == 0 {
		return ""
	}
	return u.texts[len(u.texts)-1]
}

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	handler  capture.Handler
	starts   int
	stops    int
	closed   bool
}

func (f *fakeCapture) Start(_ context.Context, h capture.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.handler = h
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapture) current() capture.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

// hear delivers a successful capture the way capture.Capture does.
func (f *fakeCapture) hear(text string) {
	h := f.current()
	h.Ready()
	h.Ended()
	h.Transcript(text)
}

type fakeModel struct {
	mu      sync.Mutex
	resp    string
	err     error
	prompts []string
}

func (m *fakeModel) Generate(_ context.Context, p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	return m.resp, m.err
}

func (m *fakeModel) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

type fakeSpeaker struct {
	mu       sync.Mutex
	speakErr error
	texts    []string
	done     func(error)
	stops    int
	spoke    chan struct{}
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{spoke: make(chan struct{}, 4)}
}

func (s *fakeSpeaker) Speak(_ context.Context, text string, done func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakErr != nil {
		return s.speakErr
	}
	s.texts = append(s.texts, text)
	s.done = done
	s.spoke <- struct{}{}
	return nil
}

func (s *fakeSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSpeaker) finish(t *testing.T, err error) {
	t.Helper()
	select {
	case <-s.spoke:
	case <-time.After(2 * time.Second):
		t.Fatal("speech never started")
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	done(err)
}

func (s *fakeSpeaker) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeNav struct {
	targets chan string
}

func (n *fakeNav) Navigate(_ context.Context, target string) error {
	n.targets <- target
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	states   []State
	outcomes []Outcome
}

func (o *recordingObserver) StateChanged(_, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, to)
}

func (o *recordingObserver) TurnEnded(outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type harness struct {
	ctrl    *Controller
	ui      *fakeUI
	capt    *fakeCapture
	model   *fakeModel
	speaker *fakeSpeaker
	nav     *fakeNav
	obs     *recordingObserver
	cancel  context.CancelFunc
	runErr  chan error
}

var testClock = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func newHarness(t *testing.T, resp string, revealFor time.Duration) *harness {
	t.Helper()

	h := &harness{
		ui:      &fakeUI{},
		capt:    &fakeCapture{},
		model:   &fakeModel{resp: resp},
		speaker: newFakeSpeaker(),
		nav:     &fakeNav{targets: make(chan string, 1)},
		obs:     &recordingObserver{},
		runErr:  make(chan error, 1),
	}
	h.ctrl = New(h.capt, h.model, present.New(present.WithDuration(revealFor)), h.speaker, h.ui,
		WithNavigator(h.nav),
		WithObserver(h.obs),
		WithClock(func() time.Time { return testClock }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.ctrl.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.runErr
	})
	return h
}

func (h *harness) state(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.ctrl.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := h.ctrl.Snapshot(context.Background())
		return err == nil && s.State == want
	}, 2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Activate(context.Background()))
}

func (h *harness) noNavigation(t *testing.T) {
	t.Helper()
	select {
	case target := <-h.nav.targets:
		t.Fatalf("unexpected navigation to %q", target)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCaptureErrorNeverQueriesModel(t *testing.T) {
	h := newHarness(t, "unused", time.Millisecond)

	h.activate(t)
	assert.Equal(t, Listening, h.state(t).State)

	hd := h.capt.current()
	hd.Ended()
	hd.Failed(&capture.Error{Kind: capture.NoMatch})
	h.waitState(t, Idle)

	assert.Empty(t, h.model.calls())
	texts, errs, _, starts, stops := h.ui.snapshot()
	assert.Equal(t, []string{GenericErrorMessage}, errs)
	assert.Equal(t, []string{GenericErrorMessage}, texts)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestCameraResponseNavigatesAfterSpeech(t *testing.T) {
	const resp = "Sure, opening the Camera now."
	h := newHarness(t, resp, 20*time.Millisecond)

	h.activate(t)
	h.capt.hear("open camera")
	h.waitState(t, Speaking)

	s := h.state(t)
	assert.True(t, s.Speaking)
	assert.NotEmpty(t, s.TurnID)
	h.noNavigation(t)

	h.speaker.finish(t, nil)

	select {
	case target := <-h.nav.targets:
		assert.Equal(t, "camera", target)
	case <-time.After(2 * time.Second):
		t.Fatal("camera was never opened")
	}
	h.waitState(t, Idle)

	prompts := h.model.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Tuesday, 05 Mar 2024 14:07:09 UTC")
	assert.Contains(t, prompts[0], "The user command is: Open Camera")

	_, errs, notes, _, _ := h.ui.snapshot()
	assert.Empty(t, errs)
	assert.Contains(t, notes, ListeningMessage)
	assert.Equal(t, resp, h.ui.lastText())
	assert.False(t, h.state(t).Speaking)

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	assert.Equal(t, []State{Listening, AwaitingModel, Presenting, Speaking, Idle}, h.obs.states)
	assert.Equal(t, []Outcome{Completed}, h.obs.outcomes)
}

func TestQueryFailureShowsGenericError(t *testing.T) {
	h := newHarness(t, "partial answer", time.Millisecond)
	h.model.err = errors.New("503 service unavailable")

	h.activate(t)
	h.capt.hear("what time is it")
	h.waitState(t, Idle)

	texts, errs, _, _, _ := h.ui.snapshot()
	assert.Equal(t, []string{GenericErrorMessage}, errs)
	assert.Equal(t, []string{GenericErrorMessage}, texts)
	assert.Empty(t, h.speaker.texts)
}

func TestEmptyResponseIsFailure(t *testing.T) {
	h := newHarness(t, "  \n", time.Millisecond)

	h.activate(t)
	h.capt.hear("what time is it")
	h.waitState(t, Idle)

	_, errs, _, _, _ := h.ui.snapshot()
	assert.Equal(t, []string{GenericErrorMessage}, errs)
	assert.Empty(t, h.speaker.texts)
}

func TestActivateWhileBusy(t *testing.T) {
	h := newHarness(t, "It is two o'clock", time.Hour)

	h.activate(t)
	assert.ErrorIs(t, h.ctrl.Activate(context.Background()), ErrBusy)
	assert.Equal(t, 1, h.capt.starts)

	h.capt.hear("what time is it")
	h.waitState(t, Presenting)
	assert.ErrorIs(t, h.ctrl.Activate(context.Background()), ErrBusy)

	h.speaker.finish(t, nil)
	h.waitState(t, Idle)
	assert.False(t, h.state(t).Speaking)

	h.activate(t)
	assert.Equal(t, 2, h.capt.starts)
}

func TestStopWhileSpeaking(t *testing.T) {
	h := newHarness(t, "Opening the camera", 5*time.Millisecond)

	h.activate(t)
	h.capt.hear("open camera")
	h.waitState(t, Speaking)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	s := h.state(t)
	assert.Equal(t, Idle, s.State)
	assert.False(t, s.Speaking)
	assert.Equal(t, 1, h.speaker.stopCount())

	// The speaker reports its interrupted playback late; it belongs to a
	// finished turn.
	h.speaker.finish(t, errors.New("interrupted"))
	h.noNavigation(t)

	_, errs, _, _, _ := h.ui.snapshot()
	assert.Empty(t, errs)

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	assert.Equal(t, []Outcome{Stopped}, h.obs.outcomes)
}

func TestStopWhileListening(t *testing.T) {
	h := newHarness(t, "unused", time.Millisecond)

	h.activate(t)
	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, Idle, h.state(t).State)
	assert.Equal(t, 1, h.capt.stops)

	// Late results of the stopped capture are dropped.
	h.capt.hear("open camera")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.model.calls())

	_, _, _, starts, stops := h.ui.snapshot()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestStopWhenIdle(t *testing.T) {
	h := newHarness(t, "unused", time.Millisecond)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, Idle, h.state(t).State)
	assert.Zero(t, h.speaker.stopCount())
}

func TestSynthesisErrorReturnsToIdle(t *testing.T) {
	h := newHarness(t, "Opening the camera", time.Hour)

	h.activate(t)
	h.capt.hear("open camera")
	h.waitState(t, Presenting)

	h.speaker.finish(t, errors.New("audio device lost"))
	h.waitState(t, Idle)
	h.noNavigation(t)

	_, errs, _, _, _ := h.ui.snapshot()
	assert.Equal(t, []string{GenericErrorMessage}, errs)
	assert.Equal(t, GenericErrorMessage, h.ui.lastText())
	assert.False(t, h.state(t).Speaking)
}

func TestSpeakRefused(t *testing.T) {
	h := newHarness(t, "Opening the camera", time.Hour)
	h.speaker.speakErr = errors.New("no voice")

	h.activate(t)
	h.capt.hear("open camera")
	h.waitState(t, Idle)
	h.noNavigation(t)

	_, errs, _, _, _ := h.ui.snapshot()
	assert.Equal(t, []string{GenericErrorMessage}, errs)
}

func TestPermissionRequired(t *testing.T) {
	h := newHarness(t, "unused", time.Millisecond)
	h.capt.startErr = capture.ErrPermissionRequired

	err := h.ctrl.Activate(context.Background())
	require.ErrorIs(t, err, capture.ErrPermissionRequired)
	assert.Equal(t, Idle, h.state(t).State)

	_, errs, notes, starts, _ := h.ui.snapshot()
	assert.Equal(t, []string{PermissionMessage}, notes)
	assert.Empty(t, errs)
	assert.Zero(t, starts)
}

func TestSpeechFinishingFirstFlushesText(t *testing.T) {
	const resp = "It is a quarter past two in the afternoon."
	h := newHarness(t, resp, time.Hour)

	h.activate(t)
	h.capt.hear("what time is it")
	h.waitState(t, Presenting)

	h.speaker.finish(t, nil)
	h.waitState(t, Idle)

	assert.Equal(t, resp, h.ui.lastText())
	assert.Equal(t, resp, h.state(t).Text)
	h.noNavigation(t)
}

func TestKeywordIsCheckedOnResponse(t *testing.T) {
	t.Run("transcript mentions camera", func(t *testing.T) {
		h := newHarness(t, "I can only tell you the time.", time.Millisecond)

		h.activate(t)
		h.capt.hear("open the camera")
		h.speaker.finish(t, nil)
		h.waitState(t, Idle)

		h.noNavigation(t)
	})

	t.Run("response mentions camera", func(t *testing.T) {
		h := newHarness(t, "Launching the CAMERA.", time.Millisecond)

		h.activate(t)
		h.capt.hear("let me take a picture")
		h.speaker.finish(t, nil)

		select {
		case target := <-h.nav.targets:
			assert.Equal(t, "camera", target)
		case <-time.After(2 * time.Second):
			t.Fatal("camera was never opened")
		}
	})
}

func TestCustomTriggers(t *testing.T) {
	h := newHarness(t, "Starting the timer", time.Millisecond)
	h.ctrl.triggers = []Trigger{{Keyword: "timer", Target: "clock"}}

	h.activate(t)
	h.capt.hear("set a timer")
	h.speaker.finish(t, nil)

	select {
	case target := <-h.nav.targets:
		assert.Equal(t, "clock", target)
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation")
	}
}

func TestRunTeardown(t *testing.T) {
	h := newHarness(t, "unused", time.Millisecond)

	h.activate(t)
	h.cancel()
	require.NoError(t, <-h.runErr)
	h.runErr <- nil

	assert.Equal(t, 1, h.capt.stops)
	assert.True(t, h.capt.closed)
	assert.ErrorIs(t, h.ctrl.Activate(context.Background()), ErrClosed)

	_, err := h.ctrl.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMatch(t *testing.T) {
	c := New(nil, nil, nil, nil, nil)

	assert.Equal(t, "camera", c.match("Opening your Camera"))
	assert.Equal(t, "", c.match("It is noon"))
	assert.Equal(t, "", c.match(""))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_model", AwaitingModel.String())
	assert.Equal(t, "unknown", State(42).String())
}

// slowSource records until cancelled and takes a while to let go of the
// device, like a microphone finishing its last frame read.
type slowSource struct {
	started chan struct{}
}

func (s *slowSource) Record(ctx context.Context, _ func()) ([]float32, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	return nil, ctx.Err()
}

type silentTranscriber struct{}

func (silentTranscriber) Transcribe(context.Context, []float32) ([]string, error) {
	return nil, nil
}

func TestStopThenActivateWithLocalRecognizer(t *testing.T) {
	src := &slowSource{started: make(chan struct{}, 1)}
	ui := &fakeUI{}
	ctrl := New(capture.New(capture.NewLocal(src, silentTranscriber{}), nil),
		&fakeModel{resp: "unused"}, present.New(), newFakeSpeaker(), ui)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runErr
	})

	require.NoError(t, ctrl.Activate(context.Background()))
	<-src.started
	require.NoError(t, ctrl.Stop(context.Background()))

	require.NoError(t, ctrl.Activate(context.Background()))
	<-src.started

	s, err := ctrl.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Listening, s.State)

	_, errs, _, _, _ := ui.snapshot()
	assert.Empty(t, errs)
}
