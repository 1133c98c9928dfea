package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/vote"
)

// BallotStatus says what a successful CastVote did.
type BallotStatus string

const (
	BallotCast    BallotStatus = "cast"
	BallotChanged BallotStatus = "changed"
	BallotMarked  BallotStatus = "marked"
)

// CastVote records voter's ballot for target. channelID must be the vote
// channel of the current phase, or the raven channel by day, in which case
// the target is marked for the raven bonus.
func (c *Coordinator) CastVote(ctx context.Context, voter, target, channelID string) (BallotStatus, error) {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return "", err
	}
	role, ok := st.RoleOf(channelID)
	if !ok {
		return "", reject(CodeWrongChannel, "vote.wrong_channel")
	}
	kind := st.Phase.Kind
	if role == game.ChannelRaven {
		if kind != game.Day {
			return "", reject(CodeWrongPhase, "raven.day_only")
		}
	} else if role != game.VoteChannel(kind) {
		return "", reject(CodeWrongChannel, "vote.wrong_channel")
	}

	alive, err := c.roles.HasRole(ctx, target, c.cfg.Guild.AliveRole)
	if err != nil {
		return "", err
	}
	if !alive {
		return "", reject(CodeNotAlive, "vote.not_alive", target)
	}

	status := BallotCast
	_, err = vote.ModifyActive(ctx, c.store, kind, func(s vote.Session) (vote.Session, error) {
		if !s.Eligible(target) {
			return s, reject(CodeNotEligible, "vote.not_eligible", target, strings.Join(s.Choices, ", "))
		}
		if role == game.ChannelRaven {
			if s.HasRaven() {
				return s, reject(CodeAlreadyMarked, "raven.already_marked")
			}
			status = BallotMarked
			return s.MarkRaven(target), nil
		}
		out, changed := s.Cast(voter, target)
		if changed {
			status = BallotChanged
		}
		return out, nil
	})
	if err != nil {
		return "", sessionError(err)
	}
	log.Debug().Str("voter", voter).Str("target", target).Str("status", string(status)).Msg("[lg] ballot")
	return status, nil
}

// RetractVote removes voter's ballot, or the raven mark when sent from the
// raven channel by day.
func (c *Coordinator) RetractVote(ctx context.Context, voter, channelID string) error {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return err
	}
	role, ok := st.RoleOf(channelID)
	if !ok {
		return reject(CodeWrongChannel, "vote.wrong_channel")
	}
	kind := st.Phase.Kind
	switch {
	case role == game.ChannelRaven && kind == game.Day:
		_, err = vote.ModifyActive(ctx, c.store, game.Day, func(s vote.Session) (vote.Session, error) {
			if !s.HasRaven() {
				return s, reject(CodeNothingToRetract, "raven.nothing_to_retract")
			}
			return s.ClearRaven(), nil
		})
	case role == game.VoteChannel(kind):
		_, err = vote.ModifyActive(ctx, c.store, kind, func(s vote.Session) (vote.Session, error) {
			out, ok := s.Retract(voter)
			if !ok {
				return s, reject(CodeNothingToRetract, "vote.nothing_to_retract")
			}
			return out, nil
		})
	default:
		return reject(CodeWrongChannel, "vote.wrong_channel")
	}
	return sessionError(err)
}

// ResetVotes drops every ballot of the active session of kind k. The phase,
// the eligible choices and the raven mark are kept.
func (c *Coordinator) ResetVotes(ctx context.Context, k game.Kind) error {
	_, err := vote.ModifyActive(ctx, c.store, k, func(s vote.Session) (vote.Session, error) {
		return s.ClearBallots(), nil
	})
	if err != nil {
		return sessionError(err)
	}
	log.Info().Str("kind", string(k)).Msg("[lg] votes reset")
	return nil
}

// Standing is the current top of a tally.
type Standing struct {
	Votes   int      `json:"votes"`
	Players []string `json:"players"`
}

// MostVoted tells the current leader(s) of the day vote that they lead, and
// tells caller who they are. It only makes sense by day.
func (c *Coordinator) MostVoted(ctx context.Context, caller string) (Standing, error) {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return Standing{}, err
	}
	if st.Phase.Kind != game.Day {
		return Standing{}, reject(CodeWrongPhase, "most_voted.day_only")
	}
	s, err := vote.Active(ctx, c.store, game.Day)
	if err != nil {
		return Standing{}, sessionError(err)
	}
	top, leaders := vote.Leaders(vote.Tally(s))
	out := Standing{Votes: top, Players: leaders}

	ev := platform.Event{Kind: platform.EventNotice}
	switch len(leaders) {
	case 0:
		ev.Key = "most_voted.none"
		c.whisper(ctx, caller, ev)
	case 1:
		ev.Key, ev.Args = "most_voted.you", []any{top}
		c.whisper(ctx, leaders[0], ev)
		ev.Key, ev.Args = "most_voted.single", []any{leaders[0], top}
		c.whisper(ctx, caller, ev)
	default:
		list := strings.Join(leaders, ", ")
		for _, p := range leaders {
			ev.Key, ev.Args = "most_voted.tied", []any{list, top}
			c.whisper(ctx, p, ev)
		}
		ev.Key, ev.Args = "most_voted.tie", []any{list, top}
		c.whisper(ctx, caller, ev)
	}
	return out, nil
}

func sessionError(err error) error {
	if errors.Is(err, vote.ErrNoSession) {
		return reject(CodeNoSession, "vote.no_session")
	}
	return err
}
