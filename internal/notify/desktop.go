// Package notify gives the headless daemon a voice and a face: a chime when
// it starts listening and desktop notifications for everything else.
package notify

import (
	"context"
	"sync"
	"time"

	log "log/slog"

	"github.com/gen2brain/beeep"

	"zegion/internal/turn"
)

const title = "Zegion"

// settle is how long the text must stay unchanged before it is shown, so a
// progressive reveal ends up as a single notification.
const settle = 400 * time.Millisecond

// Desktop implements [turn.UI] with desktop notifications.
type Desktop struct {
	chime  *Chime
	notify func(title, message, icon string) error
	alert  func(title, message, icon string) error

	mu      sync.Mutex
	pending string
	shown   string
	timer   *time.Timer
}

var _ turn.UI = (*Desktop)(nil)

// NewDesktop returns the daemon UI. chime may be nil.
func NewDesktop(chime *Chime) *Desktop {
	return &Desktop{
		chime:  chime,
		notify: beeep.Notify,
		alert:  beeep.Alert,
	}
}

func (d *Desktop) ShowText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = text
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(settle, d.flush)
}

func (d *Desktop) flush() {
	d.mu.Lock()
	text := d.pending
	if text == "" || text == d.shown {
		d.mu.Unlock()
		return
	}
	d.shown = text
	d.mu.Unlock()

	log.Info("Reply", "text", text)
	if err := d.notify(title, text, ""); err != nil {
		log.Warn("Notification failed", "err", err)
	}
}

func (d *Desktop) ShowError(message string) {
	d.mu.Lock()
	// The text area also carries the message; keep it from being toasted twice.
	d.shown = message
	d.mu.Unlock()

	log.Warn("Turn failed", "message", message)
	if err := d.alert(title, message, ""); err != nil {
		log.Warn("Alert failed", "err", err)
	}
}

func (d *Desktop) Notify(message string) {
	if err := d.notify(title, message, ""); err != nil {
		log.Warn("Notification failed", "err", err)
	}
}

func (d *Desktop) StartPulse() {
	log.Debug("Pulse started")

	d.mu.Lock()
	d.shown = ""
	d.mu.Unlock()

	if d.chime == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := d.chime.Play(ctx); err != nil {
			log.Warn("Chime failed", "err", err)
		}
	}()
}

func (d *Desktop) StopPulse() {
	log.Debug("Pulse stopped")
}
