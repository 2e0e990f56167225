package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type toasts struct {
	mu     sync.Mutex
	notes  []string
	alerts []string
}

func (t *toasts) desktop() *Desktop {
	d := NewDesktop(nil)
	d.notify = func(_, msg, _ string) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.notes = append(t.notes, msg)
		return nil
	}
	d.alert = func(_, msg, _ string) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.alerts = append(t.alerts, msg)
		return errors.New("no notification daemon")
	}
	return d
}

func (t *toasts) get() (notes, alerts []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.notes...), append([]string(nil), t.alerts...)
}

func TestDesktop_RevealBecomesOneNotification(t *testing.T) {
	var ts toasts
	d := ts.desktop()

	d.StartPulse()
	for _, prefix := range []string{"I", "It", "It ", "It i", "It is", "It is noon"} {
		d.ShowText(prefix)
	}

	assert.Eventually(t, func() bool {
		notes, _ := ts.get()
		return len(notes) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The final flush of the same text is not repeated.
	d.ShowText("It is noon")
	time.Sleep(2 * settle)

	notes, _ := ts.get()
	assert.Equal(t, []string{"It is noon"}, notes)
}

func TestDesktop_ErrorIsAlertedOnce(t *testing.T) {
	var ts toasts
	d := ts.desktop()

	d.ShowText("Something went wrong")
	d.ShowError("Something went wrong")
	time.Sleep(2 * settle)

	notes, alerts := ts.get()
	assert.Empty(t, notes)
	assert.Equal(t, []string{"Something went wrong"}, alerts)
}

func TestDesktop_Notify(t *testing.T) {
	var ts toasts
	d := ts.desktop()

	d.Notify("Listening")
	d.StopPulse()

	notes, _ := ts.get()
	assert.Equal(t, []string{"Listening"}, notes)
}
