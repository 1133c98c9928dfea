package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/vote"
)

// Transition reports what an advance did.
type Transition struct {
	// Result is the resolution of the outgoing vote.
	Result vote.Result
	// Advanced is false when the result stopped the transition.
	Advanced bool
	// Phase is the phase the game is in afterwards.
	Phase game.Phase
}

// AdvanceToDay ends the night. kill lets a single leader of the wolves' vote
// die; force suppresses a tie.
func (c *Coordinator) AdvanceToDay(ctx context.Context, force, kill bool) (Transition, error) {
	return c.advance(ctx, game.Day, force, kill)
}

// AdvanceToNight ends the day.
func (c *Coordinator) AdvanceToNight(ctx context.Context, force, kill bool) (Transition, error) {
	return c.advance(ctx, game.Night, force, kill)
}

func (c *Coordinator) advance(ctx context.Context, target game.Kind, force, kill bool) (Transition, error) {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return Transition{}, err
	}
	if st.Phase.Kind == target {
		return Transition{Phase: st.Phase}, reject(CodeWrongPhase, "phase.already", string(target))
	}
	outgoing := st.Phase.Kind

	fresh, finished, err := vote.Replace(ctx, c.store, outgoing)
	if err != nil {
		return Transition{}, fmt.Errorf("replace %s session: %w", outgoing, err)
	}
	closed := latest(finished)
	result := vote.Resolve(closed, kill, force)
	log.Info().
		Str("phase", st.Phase.String()).
		Str("outcome", result.Outcome.String()).
		Strs("players", result.Players).
		Msg("[lg] vote resolved")

	tr := Transition{Result: result, Phase: st.Phase}
	voteChannel := game.VoteChannel(outgoing)
	switch result.Outcome {
	case vote.NoVotes:
		c.notify(ctx, st, voteChannel, platform.Event{Kind: platform.EventVoteResolved, Key: "vote.none"})
		return tr, nil
	case vote.Tie:
		if _, err := vote.Modify(ctx, c.store, fresh.ID, func(s vote.Session) (vote.Session, error) {
			return s.WithChoices(result.Players), nil
		}); err != nil {
			return tr, fmt.Errorf("seed revote: %w", err)
		}
		c.notify(ctx, st, voteChannel, platform.Event{
			Kind: platform.EventVoteResolved,
			Key:  "vote.tie",
			Args: []any{strings.Join(result.Players, ", ")},
		})
		return tr, nil
	case vote.Killed:
		victim, _ := result.Victim()
		if err := c.roles.SwapRole(ctx, victim, c.cfg.Guild.AliveRole, c.cfg.Guild.DeadRole, KillReasons[outgoing]); err != nil {
			return tr, fmt.Errorf("kill %s: %w", victim, err)
		}
		c.notify(ctx, st, game.ChannelVillageAnnouncements, platform.Event{
			Kind: platform.EventVoteResolved,
			Key:  "vote.killed." + string(outgoing),
			Args: []any{victim},
		})
	}

	st, err = game.Update(ctx, c.store, game.State.NextPhase)
	if err != nil {
		return tr, fmt.Errorf("advance phase: %w", err)
	}
	tr.Advanced = true
	tr.Phase = st.Phase

	if target == game.Day {
		c.enterDay(ctx, st)
	} else {
		c.enterNight(ctx, st, closed)
	}
	c.notify(ctx, st, game.ChannelVillageAnnouncements, platform.Event{
		Kind: platform.EventPhaseChanged,
		Key:  "phase." + string(target),
		Args: []any{st.Phase.Number},
	})
	log.Info().Str("phase", st.Phase.String()).Msg("[lg] phase changed")
	return tr, nil
}

// latest returns the finished session with the highest round. A game that
// had no session of that kind resolves as an empty one.
func latest(sessions []vote.Session) vote.Session {
	var out vote.Session
	for i, s := range sessions {
		if i == 0 || s.Round > out.Round {
			out = s
		}
	}
	return out
}

// enterDay opens the village to the living, unlocks the debate threads and
// keeps the wolves able to read their channels without speaking there.
func (c *Coordinator) enterDay(ctx context.Context, st game.State) {
	alive := c.cfg.Guild.AliveRole
	for _, role := range game.DayChannels {
		c.onChannel(st, role, "open", func(id string) error {
			return c.guild.SetRolePermissions(ctx, id, alive, platform.Overwrite{Allow: platform.PermView | platform.PermSend})
		})
	}
	c.lockThreads(ctx, st, false)

	wolves := c.wolves(ctx, st)
	for _, role := range game.WolfChannels {
		c.onChannel(st, role, "mute wolves", func(id string) error {
			for _, w := range wolves {
				if err := c.guild.SetMemberPermissions(ctx, id, w, platform.Overwrite{Allow: platform.PermView, Deny: platform.PermSend}); err != nil {
					return err
				}
			}
			return c.guild.SetRolePermissions(ctx, id, alive, platform.Overwrite{Deny: platform.PermSend})
		})
	}
}

// enterNight closes the village, locks the debate threads and lets the wolves
// talk. When the day that just ended carried a raven mark it is revealed.
func (c *Coordinator) enterNight(ctx context.Context, st game.State, day vote.Session) {
	alive := c.cfg.Guild.AliveRole
	for _, role := range game.DayChannels {
		c.onChannel(st, role, "close", func(id string) error {
			return c.guild.SetRolePermissions(ctx, id, alive, platform.Overwrite{Deny: platform.PermView | platform.PermSend})
		})
		c.notify(ctx, st, role, platform.Event{Kind: platform.EventSeparator, Key: "separator", Args: []any{st.Phase.Number}})
	}
	c.lockThreads(ctx, st, true)

	wolves := c.wolves(ctx, st)
	for _, role := range game.WolfChannels {
		c.onChannel(st, role, "unmute wolves", func(id string) error {
			for _, w := range wolves {
				if err := c.guild.SetMemberPermissions(ctx, id, w, platform.Overwrite{Allow: platform.PermView | platform.PermSend}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if day.HasRaven() {
		c.notify(ctx, st, game.ChannelVotes, platform.Event{
			Kind:    platform.EventRavenRevealed,
			Persona: RavenPersona,
			Key:     "raven.reveal",
			Args:    []any{day.Raven},
		})
	}
}

// onChannel runs fn on the channel registered under role. Nothing here may
// abort a transition that already happened, so failures are only logged.
func (c *Coordinator) onChannel(st game.State, role game.ChannelRole, what string, fn func(id string) error) {
	id, ok := st.ResolveChannel(role)
	if !ok {
		log.Warn().Str("channel", string(role)).Str("step", what).Msg("[lg] channel not registered, step skipped")
		return
	}
	if err := fn(id); err != nil {
		log.Error().Err(err).Str("channel", string(role)).Str("step", what).Msg("[lg] transition step failed")
	}
}

func (c *Coordinator) lockThreads(ctx context.Context, st game.State, locked bool) {
	c.onChannel(st, game.ChannelSubjects, "threads", func(id string) error {
		threads, err := c.guild.ActiveThreads(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range threads {
			if err := c.guild.SetThreadLocked(ctx, t, locked); err != nil {
				return err
			}
		}
		return nil
	})
}

// wolves returns the living members who can see the wolves' chat.
func (c *Coordinator) wolves(ctx context.Context, st game.State) []string {
	chat, ok := st.ResolveChannel(game.ChannelWolvesChat)
	if !ok {
		return nil
	}
	alive, err := c.roles.Members(ctx, c.cfg.Guild.AliveRole)
	if err != nil {
		log.Error().Err(err).Msg("[lg] list alive members")
		return nil
	}
	var out []string
	for _, m := range alive {
		ok, err := c.guild.CanView(ctx, chat, m)
		if err != nil {
			log.Error().Err(err).Str("member", m).Msg("[lg] check wolves-chat access")
			continue
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}
