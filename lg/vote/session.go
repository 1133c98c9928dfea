// Package vote models voting sessions and resolves them into an outcome.
package vote

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// Session is one round of balloting for a phase kind. Values are snapshots:
// every method returns a modified copy.
type Session struct {
	ID      string            `json:"id"`
	Kind    game.Kind         `json:"kind"`
	Round   int               `json:"round"`
	Active  bool              `json:"active"`
	Ballots map[string]string `json:"ballots"`
	// Choices restricts the eligible targets when non-empty.
	Choices []string `json:"choices"`
	// Raven is the target marked by the raven. Only Day sessions carry one.
	Raven string `json:"raven,omitempty"`
}

func (Session) RecordType() string  { return "vote_session" }
func (s Session) RecordID() string { return s.ID }

// NewSession opens an active, empty session of kind k.
func NewSession(k game.Kind) Session {
	return Session{
		ID:      uuid.NewString(),
		Kind:    k,
		Active:  true,
		Ballots: make(map[string]string),
		Choices: []string{},
	}
}

func (s Session) clone() Session {
	out := s
	out.Ballots = maps.Clone(s.Ballots)
	if out.Ballots == nil {
		out.Ballots = make(map[string]string)
	}
	out.Choices = slices.Clone(s.Choices)
	if out.Choices == nil {
		out.Choices = []string{}
	}
	return out
}

// Cast records voter's ballot for target. changed reports whether it
// replaced an earlier ballot from the same voter.
func (s Session) Cast(voter, target string) (out Session, changed bool) {
	out = s.clone()
	_, changed = out.Ballots[voter]
	out.Ballots[voter] = target
	return out, changed
}

// Retract removes voter's ballot. ok is false when there was none.
func (s Session) Retract(voter string) (out Session, ok bool) {
	if _, ok = s.Ballots[voter]; !ok {
		return s, false
	}
	out = s.clone()
	delete(out.Ballots, voter)
	return out, true
}

// Ballot returns voter's current target.
func (s Session) Ballot(voter string) (string, bool) {
	t, ok := s.Ballots[voter]
	return t, ok
}

// MarkRaven sets the raven's target. It is a no-op on night sessions.
func (s Session) MarkRaven(target string) Session {
	if s.Kind != game.Day {
		return s
	}
	out := s.clone()
	out.Raven = target
	return out
}

func (s Session) ClearRaven() Session {
	out := s.clone()
	out.Raven = ""
	return out
}

func (s Session) HasRaven() bool { return s.Kind == game.Day && s.Raven != "" }

// WithChoices restricts the eligible targets. An empty list lets everyone be
// voted for.
func (s Session) WithChoices(choices []string) Session {
	out := s.clone()
	out.Choices = slices.Clone(choices)
	if out.Choices == nil {
		out.Choices = []string{}
	}
	return out
}

// Eligible reports whether target may receive ballots.
func (s Session) Eligible(target string) bool {
	return len(s.Choices) == 0 || slices.Contains(s.Choices, target)
}

// ClearBallots drops every ballot, keeping choices and the raven mark.
func (s Session) ClearBallots() Session {
	out := s.clone()
	out.Ballots = make(map[string]string)
	return out
}

// Finish marks the session inactive.
func (s Session) Finish() Session {
	out := s.clone()
	out.Active = false
	return out
}
