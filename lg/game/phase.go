package game

import "fmt"

// Kind is the half of the cycle a phase (or a vote session) belongs to.
type Kind string

const (
	Day   Kind = "day"
	Night Kind = "night"
)

// Opposite returns the other half of the cycle.
func (k Kind) Opposite() Kind {
	if k == Day {
		return Night
	}
	return Day
}

func (k Kind) Valid() bool { return k == Day || k == Night }

// Phase is a point in the day/night cycle. The number only grows when night
// turns into day: Night(0) -> Day(1) -> Night(1) -> Day(2).
type Phase struct {
	Kind   Kind `json:"kind"`
	Number int  `json:"number"`
}

// FirstPhase is where every game starts.
func FirstPhase() Phase { return Phase{Kind: Night, Number: 0} }

// Next returns the phase following p.
func (p Phase) Next() Phase {
	if p.Kind == Day {
		return Phase{Kind: Night, Number: p.Number}
	}
	return Phase{Kind: Day, Number: p.Number + 1}
}

func (p Phase) String() string {
	return fmt.Sprintf("%s %d", p.Kind, p.Number)
}
