package turn

import "time"

// State is the phase of the current turn.
type State int

const (
	Idle State = iota
	Listening
	AwaitingModel
	Presenting
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case AwaitingModel:
		return "awaiting_model"
	case Presenting:
		return "presenting"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome string

const (
	Completed Outcome = "completed"
	Failed    Outcome = "failed"
	Stopped   Outcome = "stopped"
)

// Snapshot is a copy of the controller state taken on its loop.
type Snapshot struct {
	State    State
	Speaking bool
	TurnID   string
	Text     string
}

// Observer is told about every transition and every finished turn. Both
// methods run on the controller loop and must not block.
type Observer interface {
	StateChanged(from, to State)
	TurnEnded(outcome Outcome, elapsed time.Duration)
}

// Trigger maps a keyword found in a response to a navigation target.
type Trigger struct {
	Keyword string
	Target  string
}

// DefaultTriggers opens the camera whenever a response mentions it.
var DefaultTriggers = []Trigger{{Keyword: "camera", Target: "camera"}}
