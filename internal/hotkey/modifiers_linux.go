//go:build linux

package hotkey

import "golang.design/x/hotkey"

// On X11 alt is Mod1 and super is Mod4.
var modifierMap = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.Mod1,
	"super": hotkey.Mod4,
}
