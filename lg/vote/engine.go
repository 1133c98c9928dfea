package vote

import (
	"slices"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// RavenBonus is the weight added to the raven's target on a day vote.
const RavenBonus = 2

// Outcome is what a finished vote leads to.
type Outcome int

const (
	NoVotes Outcome = iota
	Tie
	Killed
)

func (o Outcome) String() string {
	switch o {
	case Tie:
		return "tie"
	case Killed:
		return "killed"
	default:
		return "none"
	}
}

// Result is the resolution of a session. Players holds the tied players for
// Tie and the single victim for Killed.
type Result struct {
	Outcome Outcome
	Players []string
}

// Victim returns the killed player, if any.
func (r Result) Victim() (string, bool) {
	if r.Outcome != Killed || len(r.Players) != 1 {
		return "", false
	}
	return r.Players[0], true
}

// Tally counts ballots per target, adding the raven bonus on day sessions.
func Tally(s Session) map[string]int {
	counts := make(map[string]int, len(s.Ballots)+1)
	for _, target := range s.Ballots {
		counts[target]++
	}
	if s.Kind == game.Day && s.Raven != "" {
		counts[s.Raven] += RavenBonus
	}
	return counts
}

// Leaders returns the highest count and the players holding it, sorted by
// id. An empty tally yields (0, nil).
func Leaders(tally map[string]int) (int, []string) {
	top := 0
	var players []string
	for p, n := range tally {
		switch {
		case n > top:
			top = n
			players = []string{p}
		case n == top:
			players = append(players, p)
		}
	}
	slices.Sort(players)
	return top, players
}

// Resolve turns a session into its outcome. A tie is reported unless force
// is set; a single leader is killed only when kill is set.
func Resolve(s Session, kill, force bool) Result {
	tally := Tally(s)
	if len(tally) == 0 {
		return Result{Outcome: NoVotes}
	}
	_, leaders := Leaders(tally)
	if len(leaders) > 1 {
		if !force {
			return Result{Outcome: Tie, Players: leaders}
		}
		return forcedTieOutcome(leaders)
	}
	if kill {
		return Result{Outcome: Killed, Players: leaders}
	}
	return Result{Outcome: NoVotes}
}

// forcedTieOutcome decides a tie the caller asked to force through. Forcing
// only suppresses the tie; no player is picked among the leaders.
// TODO: pick one of the leaders once the intended rule is settled.
func forcedTieOutcome(_ []string) Result {
	return Result{Outcome: NoVotes}
}
