// Package turn runs the voice interaction cycle: listen, transcribe, query
// the model, reveal and speak the reply, then follow up on it.
//
// All state lives on a single goroutine started by [Controller.Run]. Every
// callback from capture, the model, the presenter and the speaker is posted
// to that goroutine and dropped if it belongs to a turn that has ended.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	log "log/slog"

	"github.com/google/uuid"

	"zegion/internal/capture"
	"zegion/internal/present"
	"zegion/internal/prompt"
)

// GenericErrorMessage is shown for every failed turn.
const GenericErrorMessage = "Something went wrong, please try again"

const (
	ListeningMessage  = "Listening"
	PermissionMessage = "Microphone permission is required, grant it and try again"
)

var (
	ErrBusy      = errors.New("turn: a turn is already in progress")
	ErrClosed    = errors.New("turn: controller is not running")
	ErrSynthesis = errors.New("turn: speech synthesis failed")
)

// UI is the single screen. The controller calls it from its loop only.
type UI interface {
	ShowText(text string)
	ShowError(message string)
	Notify(message string)
	StartPulse()
	StopPulse()
}

// Speaker synthesizes speech. Speak returns once playback has started and
// calls done exactly once when it has finished or failed. An error returned
// by Speak means done will not be called.
type Speaker interface {
	Speak(ctx context.Context, text string, done func(error)) error
	Stop() error
}

// Navigator opens an application feature such as the camera.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// Capturer produces one transcript per Start.
type Capturer interface {
	Start(ctx context.Context, h capture.Handler) error
	Stop() error
	Close() error
}

// Model answers a prompt with the full response text.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Revealer shows text progressively.
type Revealer interface {
	Present(ctx context.Context, text string, sink present.Sink) *present.Reveal
}

type Option func(*Controller)

func WithTriggers(triggers []Trigger) Option {
	return func(c *Controller) { c.triggers = triggers }
}

func WithNavigator(nav Navigator) Option {
	return func(c *Controller) { c.nav = nav }
}

// WithObserver adds obs to the observers; it may be given more than once.
func WithObserver(obs Observer) Option {
	return func(c *Controller) { c.obs = append(c.obs, obs) }
}

// WithClock replaces time.Now for prompt timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type Controller struct {
	capture   Capturer
	model     Model
	presenter Revealer
	speaker   Speaker
	ui        UI
	nav       Navigator
	obs       []Observer
	triggers  []Trigger
	now       func() time.Time

	events  chan func()
	done    chan struct{}
	running atomic.Bool

	// owned by the loop
	runCtx context.Context
	state  State
	seq    uint64
	text   string
	cur    *activeTurn
}

type activeTurn struct {
	id       string
	seq      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	pulsing  bool
	speaking bool
	response string
	reveal   *present.Reveal
}

func New(c Capturer, m Model, p Revealer, s Speaker, ui UI, opts ...Option) *Controller {
	ctrl := &Controller{
		capture:   c,
		model:     m,
		presenter: p,
		speaker:   s,
		ui:        ui,
		triggers:  DefaultTriggers,
		now:       time.Now,
		events:    make(chan func(), 64),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// Run processes events until ctx is cancelled, then tears the current turn
// down and closes capture and speech. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("turn: controller already running")
	}
	defer close(c.done)

	c.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			return c.teardown()
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Controller) teardown() error {
	if c.cur != nil {
		c.end(Stopped)
	}

	errs := []error{c.capture.Close()}
	if closer, ok := c.speaker.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("turn: teardown: %w", err)
	}
	return nil
}

// Activate starts a new turn. It fails with [ErrBusy] while a turn is in
// progress and with [capture.ErrPermissionRequired] when the microphone may
// not be used yet.
func (c *Controller) Activate(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, func() { reply <- c.activate() }); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Stop cancels the current turn, whatever it is doing, and returns to Idle.
// Stopping an idle controller does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, func() {
		if c.cur != nil {
			log.Info("Turn stopped", "turn", c.cur.id, "state", c.state)
			c.end(Stopped)
		}
		reply <- nil
	}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.submit(ctx, func() {
		s := Snapshot{State: c.state, Text: c.text}
		if c.cur != nil {
			s.TurnID = c.cur.id
			s.Speaking = c.cur.speaking
		}
		reply <- s
	}); err != nil {
		return Snapshot{}, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Controller) submit(ctx context.Context, fn func()) error {
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the loop on behalf of turn seq. It never blocks once the
// loop has exited.
func (c *Controller) post(seq uint64, fn func()) {
	select {
	case c.events <- func() {
		if c.cur == nil || c.cur.seq != seq {
			return
		}
		fn()
	}:
	case <-c.done:
	}
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	log.Debug("Turn state", "from", from, "to", s)
	for _, o := range c.obs {
		o.StateChanged(from, s)
	}
}

func (c *Controller) activate() error {
	if c.state != Idle {
		return ErrBusy
	}

	c.seq++
	ctx, cancel := context.WithCancel(c.runCtx)
	t := &activeTurn{
		id:      uuid.NewString(),
		seq:     c.seq,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	seq := t.seq

	err := c.capture.Start(ctx, capture.Handler{
		Ready: func() { c.post(seq, c.onReady) },
		Ended: func() { c.post(seq, c.onEnded) },
		Transcript: func(text string) {
			c.post(seq, func() { c.onTranscript(text) })
		},
		Failed: func(err error) {
			c.post(seq, func() { c.onCaptureFailed(err) })
		},
	})
	if errors.Is(err, capture.ErrPermissionRequired) {
		cancel()
		c.ui.Notify(PermissionMessage)
		return err
	}
	if err != nil {
		cancel()
		log.Error("Could not start capture", "err", err)
		c.ui.ShowError(GenericErrorMessage)
		return err
	}

	c.cur = t
	log.Info("Turn started", "turn", t.id)
	c.setState(Listening)
	t.pulsing = true
	c.ui.StartPulse()

	return nil
}

func (c *Controller) onReady() {
	c.ui.Notify(ListeningMessage)
}

func (c *Controller) onEnded() {
	c.stopPulse()
}

func (c *Controller) stopPulse() {
	if c.cur != nil && c.cur.pulsing {
		c.cur.pulsing = false
		c.ui.StopPulse()
	}
}

func (c *Controller) onTranscript(text string) {
	if c.state != Listening {
		return
	}
	c.stopPulse()

	t := c.cur
	log.Info("Transcript", "turn", t.id, "text", text)

	p := prompt.Build(text, c.now())
	c.setState(AwaitingModel)

	go func() {
		resp, err := c.model.Generate(t.ctx, p)
		c.post(t.seq, func() { c.onResponse(resp, err) })
	}()
}

func (c *Controller) onCaptureFailed(err error) {
	if c.state != Listening {
		return
	}
	log.Warn("Capture failed", "turn", c.cur.id, "kind", capture.KindOf(err), "err", err)
	c.fail()
}

func (c *Controller) onResponse(resp string, err error) {
	if c.state != AwaitingModel {
		return
	}
	t := c.cur

	if err != nil {
		log.Error("Model query failed", "turn", t.id, "err", err)
		c.fail()
		return
	}
	if strings.TrimSpace(resp) == "" {
		log.Error("Model returned an empty response", "turn", t.id)
		c.fail()
		return
	}

	t.response = resp
	c.setState(Presenting)

	t.reveal = c.presenter.Present(t.ctx, resp, present.Sink{
		Prefix: func(prefix string) {
			c.post(t.seq, func() { c.show(prefix) })
		},
		Complete: func() { c.post(t.seq, c.onRevealComplete) },
	})

	t.speaking = true
	err = c.speaker.Speak(t.ctx, resp, func(err error) {
		c.post(t.seq, func() { c.onSpeechDone(err) })
	})
	if err != nil {
		c.onSpeechDone(err)
	}
}

func (c *Controller) onRevealComplete() {
	if c.state == Presenting {
		c.setState(Speaking)
	}
}

func (c *Controller) onSpeechDone(err error) {
	if c.state != Presenting && c.state != Speaking {
		return
	}
	t := c.cur
	t.speaking = false

	if err != nil {
		log.Error("Speech failed", "turn", t.id, "err", fmt.Errorf("%w: %w", ErrSynthesis, err))
		c.fail()
		return
	}

	t.reveal.Cancel()
	c.show(t.response)
	target := c.match(t.response)
	c.end(Completed)

	if target != "" && c.nav != nil {
		go c.navigate(target)
	}
}

func (c *Controller) navigate(target string) {
	log.Info("Navigating", "target", target)
	if err := c.nav.Navigate(c.runCtx, target); err != nil {
		log.Error("Navigation failed", "target", target, "err", err)
	}
}

// match returns the target of the first trigger whose keyword occurs in
// response, ignoring case.
func (c *Controller) match(response string) string {
	lower := strings.ToLower(response)
	for _, tr := range c.triggers {
		if tr.Keyword != "" && strings.Contains(lower, strings.ToLower(tr.Keyword)) {
			return tr.Target
		}
	}
	return ""
}

func (c *Controller) show(text string) {
	c.text = text
	c.ui.ShowText(text)
}

// fail ends the turn with the generic message in both the text area and
// the error slot.
func (c *Controller) fail() {
	c.end(Failed)
	c.show(GenericErrorMessage)
	c.ui.ShowError(GenericErrorMessage)
}

// end releases everything the current turn holds and returns to Idle.
func (c *Controller) end(outcome Outcome) {
	t := c.cur
	if t == nil {
		return
	}

	if c.state == Listening {
		if err := c.capture.Stop(); err != nil {
			log.Warn("Could not stop capture", "err", err)
		}
	}
	c.stopPulse()
	t.reveal.Cancel()
	if t.speaking {
		t.speaking = false
		if err := c.speaker.Stop(); err != nil {
			log.Warn("Could not stop speech", "err", err)
		}
	}
	t.cancel()

	c.cur = nil
	c.setState(Idle)

	elapsed := time.Since(t.started)
	log.Info("Turn ended", "turn", t.id, "outcome", outcome, "elapsed", elapsed)
	for _, o := range c.obs {
		o.TurnEnded(outcome, elapsed)
	}
}
