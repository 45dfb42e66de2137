// Package viz maps the live volume and connection signals to drawing
// parameters. It holds no audio state beyond a smoothed level; everything
// here is cosmetic and the renderer decides what to do with it.
package viz

import "math"

const (
	// attack and decay control the level smoothing. A loud frame pulls the
	// displayed level up quickly; silence lets it fall off gradually so the
	// meter does not flicker.
	attack = 0.6
	decay  = 0.15
)

// Params are the drawing inputs for one rendered frame.
type Params struct {
	// Level is the smoothed volume in [0, 1].
	Level float64

	// Connected selects the active palette and the status indicator.
	Connected bool
}

// Projector folds raw volume samples into smoothed drawing parameters.
// Not safe for concurrent use; drive it from the render loop.
type Projector struct {
	level float64
}

// Project consumes the current raw signals and returns the parameters for
// the next frame.
func (p *Projector) Project(volume float64, connected bool) Params {
	volume = math.Min(1, math.Max(0, volume))
	k := decay
	if volume > p.level {
		k = attack
	}
	p.level += k * (volume - p.level)
	if !connected {
		p.level = 0
	}
	return Params{Level: p.level, Connected: connected}
}

// Bars quantizes a level into n filled cells for a text meter.
func Bars(level float64, n int) int {
	if n <= 0 {
		return 0
	}
	filled := int(math.Round(level * float64(n)))
	if filled > n {
		filled = n
	}
	if filled < 0 {
		filled = 0
	}
	return filled
}
