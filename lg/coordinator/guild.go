package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/vote"
)

// Discover matches the channels of the main and roles categories to channel
// roles by their configured name and registers them. Every role left without
// a channel is reported in a *ConfigurationError; the matched ones are
// registered regardless.
func (c *Coordinator) Discover(ctx context.Context) error {
	byName := make(map[string]string)
	for _, category := range []string{c.cfg.Guild.MainCategory, c.cfg.Guild.RolesCategory} {
		channels, err := c.guild.Channels(ctx, category)
		if err != nil {
			return fmt.Errorf("list category %s: %w", category, err)
		}
		for _, ch := range channels {
			if _, dup := byName[ch.Name]; !dup {
				byName[ch.Name] = ch.ID
			}
		}
	}

	var missing []game.ChannelRole
	found := make(map[game.ChannelRole]string)
	for _, role := range game.ChannelRoles {
		id, ok := byName[c.cfg.ChannelName(role)]
		if !ok {
			missing = append(missing, role)
			continue
		}
		found[role] = id
	}

	_, err := game.Update(ctx, c.store, func(st game.State) game.State {
		for role, id := range found {
			st = st.RegisterChannel(role, id)
		}
		return st
	})
	if err != nil {
		return fmt.Errorf("register channels: %w", err)
	}
	log.Info().Int("registered", len(found)).Int("missing", len(missing)).Msg("[lg] channel discovery done")
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// StartInterview puts player in the interview channel.
func (c *Coordinator) StartInterview(ctx context.Context, player string) error {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return err
	}
	id, ok := st.ResolveChannel(game.ChannelInterview)
	if !ok {
		return reject(CodeNotReady, "channel.not_ready", string(game.ChannelInterview))
	}
	if st.InInterview(player) {
		return reject(CodeInterview, "interview.already", player)
	}
	if err := c.guild.SetMemberPermissions(ctx, id, player, platform.Overwrite{Allow: platform.PermView | platform.PermSend}); err != nil {
		return fmt.Errorf("open interview: %w", err)
	}
	if st, err = game.Update(ctx, c.store, func(s game.State) game.State { return s.AddInterview(player) }); err != nil {
		return err
	}
	c.notify(ctx, st, game.ChannelInterview, platform.Event{Kind: platform.EventNotice, Key: "interview.started", Args: []any{player}})
	return nil
}

// EndInterview removes player from the interview channel.
func (c *Coordinator) EndInterview(ctx context.Context, player string) error {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return err
	}
	if !st.InInterview(player) {
		return reject(CodeInterview, "interview.not_running", player)
	}
	if id, ok := st.ResolveChannel(game.ChannelInterview); ok {
		if err := c.guild.SetMemberPermissions(ctx, id, player, platform.Overwrite{}); err != nil {
			return fmt.Errorf("close interview: %w", err)
		}
	}
	if st, err = game.Update(ctx, c.store, func(s game.State) game.State { return s.RemoveInterview(player) }); err != nil {
		return err
	}
	c.notify(ctx, st, game.ChannelInterview, platform.Event{Kind: platform.EventNotice, Key: "interview.ended", Args: []any{player}})
	return nil
}

// RecordSpecialSender remembers who last spoke in a relayed role channel.
// It returns true when the sender differs from the previous one, which is
// when the relay has to announce a new speaker.
func (c *Coordinator) RecordSpecialSender(ctx context.Context, player string) (bool, error) {
	var previous string
	_, err := game.Update(ctx, c.store, func(s game.State) game.State {
		previous = s.LastSpecialSender
		return s.SetLastSpecialSender(player)
	})
	if err != nil {
		return false, err
	}
	return previous != player, nil
}

// TogglePresentation flips the presentation flag and returns its new value.
func (c *Coordinator) TogglePresentation(ctx context.Context) (bool, error) {
	st, err := game.Update(ctx, c.store, game.State.TogglePresentation)
	if err != nil {
		return false, err
	}
	return st.PresentationToggle, nil
}

// SessionStatus is the read model of one active session.
type SessionStatus struct {
	ID      string            `json:"id"`
	Kind    game.Kind         `json:"kind"`
	Round   int               `json:"round"`
	Ballots map[string]string `json:"ballots"`
	Choices []string          `json:"choices"`
	Raven   string            `json:"raven,omitempty"`
	Tally   map[string]int    `json:"tally"`
	Leaders Standing          `json:"leaders"`
}

// Status is the read model of the whole game.
type Status struct {
	Phase        game.Phase                  `json:"phase"`
	Channels     map[game.ChannelRole]string `json:"channels"`
	Interviews   []string                    `json:"interviews"`
	Presentation bool                        `json:"presentation"`
	Sessions     []SessionStatus             `json:"sessions"`
}

// Status returns the phase, the channel registry and the active sessions
// with their tallies.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	st, err := game.Load(ctx, c.store)
	if err != nil {
		return Status{}, err
	}
	out := Status{
		Phase:        st.Phase,
		Channels:     st.Channels,
		Interviews:   st.Interviews,
		Presentation: st.PresentationToggle,
		Sessions:     []SessionStatus{},
	}
	for _, k := range []game.Kind{game.Day, game.Night} {
		s, err := vote.Active(ctx, c.store, k)
		if err != nil {
			if errors.Is(err, vote.ErrNoSession) {
				continue
			}
			return Status{}, err
		}
		tally := vote.Tally(s)
		top, leaders := vote.Leaders(tally)
		out.Sessions = append(out.Sessions, SessionStatus{
			ID:      s.ID,
			Kind:    s.Kind,
			Round:   s.Round,
			Ballots: s.Ballots,
			Choices: s.Choices,
			Raven:   s.Raven,
			Tally:   tally,
			Leaders: Standing{Votes: top, Players: leaders},
		})
	}
	return out, nil
}

// Redacted returns the status as a player may see it: night ballots, the
// night tally and an unrevealed raven mark are dropped.
func (s Status) Redacted() Status {
	out := s
	out.Sessions = make([]SessionStatus, len(s.Sessions))
	for i, ss := range s.Sessions {
		switch ss.Kind {
		case game.Night:
			ss.Ballots = map[string]string{}
			ss.Tally = map[string]int{}
			ss.Leaders = Standing{}
		case game.Day:
			if ss.Raven != "" {
				tally := make(map[string]int, len(ss.Tally))
				for p, n := range ss.Tally {
					tally[p] = n
				}
				tally[ss.Raven] -= vote.RavenBonus
				if tally[ss.Raven] <= 0 {
					delete(tally, ss.Raven)
				}
				top, leaders := vote.Leaders(tally)
				ss.Tally = tally
				ss.Leaders = Standing{Votes: top, Players: leaders}
				ss.Raven = ""
			}
		}
		out.Sessions[i] = ss
	}
	return out
}
