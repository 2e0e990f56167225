// Package tts speaks replies through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
zeg_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_PLAYBACK, 500, NULL, 0);
}

static int
zeg_voice(const char *lang)
{
	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	return espeak_SetVoiceByProperties(&specs);
}

static int
zeg_say(const char *text)
{
	int rc = espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	if (rc != EE_OK)
	{ return rc; }

	return espeak_Synchronize();
}

static int
zeg_cancel(void)
{
	return espeak_Cancel();
}

static void
zeg_terminate(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	log "log/slog"
)

var (
	ErrVoiceUnavailable = errors.New("tts: voice not available")
	ErrStopped          = errors.New("tts: speech stopped")
	errBusy             = errors.New("tts: already speaking")
)

// Espeak plays one utterance at a time on the default audio device.
type Espeak struct {
	mu     sync.Mutex
	busy   bool
	closed bool
	wg     sync.WaitGroup

	stopped atomic.Bool
}

// NewEspeak initializes espeak-ng with voice. When the voice cannot be
// selected the returned speaker still works with the default voice and the
// error wraps [ErrVoiceUnavailable].
func NewEspeak(voice string) (*Espeak, error) {
	if rc := C.zeg_init(); rc < 0 {
		return nil, fmt.Errorf("tts: espeak_Initialize failed: %d", int(rc))
	}

	e := &Espeak{}
	if voice == "" {
		return e, nil
	}

	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.zeg_voice(cvoice); rc != 0 {
		return e, fmt.Errorf("%w: %s", ErrVoiceUnavailable, voice)
	}

	log.Debug("Voice selected", "voice", voice)
	return e, nil
}

func (e *Espeak) Speak(ctx context.Context, text string, done func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.New("tts: closed")
	}
	if e.busy {
		return errBusy
	}
	e.busy = true
	e.stopped.Store(false)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		stopWatch := context.AfterFunc(ctx, func() { _ = e.Stop() })
		err := e.say(text)
		stopWatch()

		e.mu.Lock()
		e.busy = false
		e.mu.Unlock()

		switch {
		case err != nil:
			done(err)
		case e.stopped.Load():
			done(ErrStopped)
		default:
			done(nil)
		}
	}()

	return nil
}

func (e *Espeak) say(text string) error {
	if text == "" {
		return nil
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.zeg_say(ctext); rc != 0 {
		return fmt.Errorf("tts: espeak_Synth failed: %d", int(rc))
	}
	return nil
}

// Stop interrupts the current utterance. Its done callback still runs,
// with [ErrStopped].
func (e *Espeak) Stop() error {
	e.stopped.Store(true)
	if rc := C.zeg_cancel(); rc != 0 {
		return fmt.Errorf("tts: espeak_Cancel failed: %d", int(rc))
	}
	return nil
}

func (e *Espeak) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.Stop()
	e.wg.Wait()
	C.zeg_terminate()
	return nil
}
