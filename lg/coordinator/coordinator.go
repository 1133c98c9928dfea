// Package coordinator drives a werewolf game: it moves the game between day
// and night, finalizes the outgoing vote and applies what the result implies
// on the platform. It also exposes the voting commands players use.
package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/config"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/vote"
)

// KillReasons are recorded in the audit log when a vote of that kind kills a
// player.
var KillReasons = map[game.Kind]string{
	game.Day:   "Killed by the village vote",
	game.Night: "Killed by the wolves",
}

// RavenPersona is the identity the raven's mark is revealed under.
const RavenPersona = "raven"

// Coordinator owns no state of its own: everything lives in the store, and
// every platform effect goes through the injected collaborators.
type Coordinator struct {
	store    *store.Store
	guild    platform.Guild
	roles    platform.RoleLifecycle
	notifier platform.Notifier
	cfg      config.Config
}

func New(st *store.Store, guild platform.Guild, roles platform.RoleLifecycle, notifier platform.Notifier, cfg config.Config) *Coordinator {
	return &Coordinator{
		store:    st,
		guild:    guild,
		roles:    roles,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Config returns the configuration the coordinator runs with.
func (c *Coordinator) Config() config.Config { return c.cfg }

// Start begins a new game on the registered channels: the phase goes back to
// Night(0) and one fresh session of each kind is opened. Every earlier session
// is dropped.
func (c *Coordinator) Start(ctx context.Context) (game.State, error) {
	st, err := game.Update(ctx, c.store, game.State.Restart)
	if err != nil {
		return game.State{}, fmt.Errorf("restart game: %w", err)
	}
	if _, err := vote.RemoveAll(ctx, c.store); err != nil {
		return game.State{}, fmt.Errorf("drop sessions: %w", err)
	}
	for _, k := range []game.Kind{game.Day, game.Night} {
		if _, err := vote.Open(ctx, c.store, k, nil); err != nil {
			return game.State{}, err
		}
	}
	c.enterNight(ctx, st, vote.Session{})
	c.notify(ctx, st, game.ChannelVillageAnnouncements, platform.Event{
		Kind: platform.EventPhaseChanged,
		Key:  "phase.night",
		Args: []any{st.Phase.Number},
	})
	log.Info().Str("phase", st.Phase.String()).Msg("[lg] game started")
	return st, nil
}

// Reset clears the persisted game back to its defaults and runs discovery
// again so the channel registry is usable.
func (c *Coordinator) Reset(ctx context.Context) error {
	if _, err := game.Reset(ctx, c.store); err != nil {
		return fmt.Errorf("reset game: %w", err)
	}
	n, err := vote.RemoveAll(ctx, c.store)
	if err != nil {
		return fmt.Errorf("drop sessions: %w", err)
	}
	log.Info().Int("sessions", n).Msg("[lg] game reset")
	return c.Discover(ctx)
}

// State returns the current game state.
func (c *Coordinator) State(ctx context.Context) (game.State, error) {
	return game.Load(ctx, c.store)
}

// notify sends ev to the channel registered under role. An unregistered
// channel or a delivery failure is logged and otherwise ignored.
func (c *Coordinator) notify(ctx context.Context, st game.State, role game.ChannelRole, ev platform.Event) {
	id, ok := st.ResolveChannel(role)
	if !ok {
		log.Warn().Str("channel", string(role)).Str("key", ev.Key).Msg("[lg] channel not registered, notice dropped")
		return
	}
	ev.Channel = role
	ev.ChannelID = id
	c.deliver(ctx, ev)
}

// whisper sends ev privately to member.
func (c *Coordinator) whisper(ctx context.Context, member string, ev platform.Event) {
	ev.Member = member
	c.deliver(ctx, ev)
}

func (c *Coordinator) deliver(ctx context.Context, ev platform.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, ev); err != nil {
		log.Warn().Err(err).Str("key", ev.Key).Msg("[lg] notify failed")
	}
}
