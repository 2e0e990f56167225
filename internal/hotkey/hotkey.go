// Package hotkey registers a system wide key combination and reports
// presses to a callback.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "log/slog"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"
)

var ErrBadCombo = errors.New("bad hotkey")

// repeatGuard swallows key repeat while the combo is held down.
const repeatGuard = 300 * time.Millisecond

// Combo is a parsed key combination such as "ctrl+shift+space".
type Combo struct {
	Mods []string
	Key  string
}

func (c Combo) String() string {
	return strings.Join(append(append([]string(nil), c.Mods...), c.Key), "+")
}

// Parse reads a "+" separated combination. Modifiers come first, the last
// element is the key. Names are case-insensitive.
func Parse(s string) (Combo, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")

	var c Combo
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Combo{}, fmt.Errorf("%w: %q", ErrBadCombo, s)
		}

		if i == len(parts)-1 {
			if _, ok := keyMap[p]; !ok {
				return Combo{}, fmt.Errorf("%w: unknown key %q", ErrBadCombo, p)
			}
			c.Key = p
			continue
		}

		if _, ok := modifierMap[p]; !ok {
			return Combo{}, fmt.Errorf("%w: unknown modifier %q", ErrBadCombo, p)
		}
		c.Mods = append(c.Mods, p)
	}
	return c, nil
}

type Listener struct {
	mu      sync.Mutex
	hk      *hotkey.Hotkey
	onPress func()
	stop    chan struct{}
	done    chan struct{}
}

// Register grabs combo and calls onPress on every key down.
func Register(c Combo, onPress func()) (*Listener, error) {
	mods := make([]hotkey.Modifier, 0, len(c.Mods))
	for _, m := range c.Mods {
		mods = append(mods, modifierMap[m])
	}
	key, ok := keyMap[c.Key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrBadCombo, c.Key)
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register %s: %w", c, err)
	}
	log.Info("Hotkey registered", "combo", c.String())

	l := &Listener{
		hk:      hk,
		onPress: onPress,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.listen()
	return l, nil
}

func (l *Listener) listen() {
	defer close(l.done)

	var last time.Time
	for {
		select {
		case <-l.stop:
			return
		case _, ok := <-l.hk.Keydown():
			if !ok {
				return
			}
			if now := time.Now(); now.Sub(last) >= repeatGuard {
				last = now
				l.onPress()
			}
		}
	}
}

// Unregister releases the combo. It is safe to call more than once.
func (l *Listener) Unregister() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hk == nil {
		return nil
	}
	close(l.stop)
	<-l.done

	err := l.hk.Unregister()
	l.hk = nil
	return err
}

// RunOnMainThread runs fn with the main thread reserved for the hotkey
// event loop, which macOS requires.
func RunOnMainThread(fn func()) {
	mainthread.Init(fn)
}

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}
