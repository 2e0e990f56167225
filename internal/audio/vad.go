package audio

import (
	"math"
	"time"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
	frameDur   = time.Second * frameSize / SampleRate
)

type step int

const (
	skip     step = iota // before speech, frame dropped
	keep                 // frame belongs to the utterance
	finished             // trailing silence long enough, utterance complete
	gaveUp               // nothing but silence until the no speech timeout
	truncate             // maximum length reached
)

// detector is an energy based endpointer over fixed size frames.
type detector struct {
	threshold      float64
	trailingFrames int
	waitFrames     int
	maxFrames      int

	frames        int
	speaking      bool
	silenceFrames int
}

func newDetector(threshold float64, trailing, noSpeech, maxLen time.Duration) *detector {
	return &detector{
		threshold:      threshold,
		trailingFrames: max(1, int(trailing/frameDur)),
		waitFrames:     int(noSpeech / frameDur),
		maxFrames:      max(1, int(maxLen/frameDur)),
	}
}

func (d *detector) feed(frame []float32) step {
	d.frames++

	if frameRMS(frame) > d.threshold {
		d.speaking = true
		d.silenceFrames = 0
	} else if d.speaking {
		d.silenceFrames++
		if d.silenceFrames >= d.trailingFrames {
			return finished
		}
	}

	switch {
	case d.frames >= d.maxFrames && d.speaking:
		return truncate
	case d.frames >= d.maxFrames:
		return gaveUp
	case !d.speaking && d.waitFrames > 0 && d.frames >= d.waitFrames:
		return gaveUp
	case !d.speaking:
		return skip
	default:
		return keep
	}
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
