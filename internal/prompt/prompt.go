// Package prompt composes the single instruction prompt sent to the model
// for one turn.
package prompt

import (
	"strings"
	"time"
	"unicode"
)

// TimeLayout renders the wall clock the same way regardless of the host
// locale.
const TimeLayout = "Monday, 02 Jan 2006 15:04:05 MST"

// Supported command categories. Extending the assistant means editing this
// list and the template below, nothing is configurable at runtime.
var Commands = []string{"camera", "time"}

const template = `You are a voice assistant. Every message you receive is a spoken command.
Check whether the command belongs to one of the available functions.
If it does not, say that the requested function is not known.
The available functions right now are: %COMMANDS%.
Keep the answer short, but make it sound like a natural spoken reply.
`

// Build returns the prompt for transcript at time now. It is pure: the same
// inputs always yield the same prompt, and an empty transcript still yields a
// well formed prompt.
func Build(transcript string, now time.Time) string {
	var b strings.Builder

	b.WriteString(strings.Replace(template, "%COMMANDS%", strings.Join(Commands, " and "), 1))
	b.WriteString("The current time is ")
	b.WriteString(now.Format(TimeLayout))
	b.WriteString(".\nThe user command is: ")
	b.WriteString(TitleCase(transcript))

	return b.String()
}

// TitleCase upper-cases the first letter of every whitespace delimited word
// and leaves everything else, whitespace included, untouched.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	atWordStart := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			atWordStart = true
		case atWordStart:
			if unicode.IsLower(r) {
				r = unicode.ToTitle(r)
			}
			atWordStart = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
