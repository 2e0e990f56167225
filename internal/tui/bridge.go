package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"zegion/internal/turn"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards controller output to the screen. It implements
// turn.UI and turn.Observer. Output before Attach is dropped.
type Bridge struct {
	mu  sync.RWMutex
	out Sender
}

func NewBridge(out Sender) *Bridge {
	return &Bridge{out: out}
}

// Attach sets the program output goes to, which usually only exists after
// the controller does.
func (b *Bridge) Attach(out Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = out
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.RLock()
	out := b.out
	b.mu.RUnlock()

	if out != nil {
		out.Send(msg)
	}
}

// Messages are sent in order; Send returns at once after the program has
// exited.

func (b *Bridge) ShowText(text string)     { b.send(textMsg(text)) }
func (b *Bridge) ShowError(message string) { b.send(errorMsg(message)) }
func (b *Bridge) Notify(message string)    { b.send(noticeMsg(message)) }
func (b *Bridge) StartPulse()              { b.send(pulseMsg(true)) }
func (b *Bridge) StopPulse()               { b.send(pulseMsg(false)) }

func (b *Bridge) StateChanged(_, to turn.State) { b.send(stateMsg(to)) }

func (b *Bridge) TurnEnded(turn.Outcome, time.Duration) {}
