package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/coordinator"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/dispatch"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
)

// gameKey is the dispatch key of every command that is not tied to a
// channel. Phase changes and admin commands all run on it, one at a time.
const gameKey = "game"

var privileged = map[string]bool{
	msgDay:          true,
	msgNight:        true,
	msgStart:        true,
	msgReset:        true,
	msgResetVotes:   true,
	msgMostVoted:    true,
	msgInterview:    true,
	msgEndInterview: true,
	msgPresentation: true,
}

// CommandRouter turns client messages into coordinator calls. Messages are
// queued on the dispatcher so that one channel's commands run in order.
type CommandRouter struct {
	coord *coordinator.Coordinator
	disp  *dispatch.Dispatcher
	l     platform.Localizer
}

func NewCommandRouter(coord *coordinator.Coordinator, disp *dispatch.Dispatcher, l platform.Localizer) *CommandRouter {
	return &CommandRouter{coord: coord, disp: disp, l: l}
}

func dispatchKey(msg ClientMessage) string {
	switch msg.Type {
	case msgVote, msgUnvote, msgSpecial:
		if msg.Channel != "" {
			return "channel:" + msg.Channel
		}
	}
	return gameKey
}

// Route queues msg from member and hands the reply to reply once handled.
func (r *CommandRouter) Route(ctx context.Context, member string, msg ClientMessage, reply func(ServerEvent)) error {
	return r.disp.Submit(ctx, dispatchKey(msg), func(taskCtx context.Context) {
		reply(r.Handle(taskCtx, member, msg))
	})
}

// Handle runs msg synchronously.
func (r *CommandRouter) Handle(ctx context.Context, member string, msg ClientMessage) ServerEvent {
	if privileged[msg.Type] && !r.coord.Config().IsAdmin(member) {
		return r.rejected(&coordinator.Rejection{Code: coordinator.CodeForbidden, Key: "command.forbidden"})
	}
	switch msg.Type {
	case msgVote:
		status, err := r.coord.CastVote(ctx, member, msg.Target, msg.Channel)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, Body: string(status)}
	case msgUnvote:
		if err := r.coord.RetractVote(ctx, member, msg.Channel); err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, Body: "retracted"}
	case msgDay, msgNight:
		advance := r.coord.AdvanceToDay
		if msg.Type == msgNight {
			advance = r.coord.AdvanceToNight
		}
		tr, err := advance(ctx, msg.Force, msg.Kill)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, Body: tr.Result.Outcome.String(), State: tr}
	case msgStart:
		st, err := r.coord.Start(ctx)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, State: st}
	case msgReset:
		if err := r.coord.Reset(ctx); err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK}
	case msgResetVotes:
		k := game.Kind(msg.Kind)
		if !k.Valid() {
			return r.rejected(&coordinator.Rejection{Code: coordinator.CodeWrongPhase, Key: "command.bad_kind", Args: []any{msg.Kind}})
		}
		if err := r.coord.ResetVotes(ctx, k); err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK}
	case msgMostVoted:
		standing, err := r.coord.MostVoted(ctx, member)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, State: standing}
	case msgInterview:
		if err := r.coord.StartInterview(ctx, msg.Target); err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK}
	case msgEndInterview:
		if err := r.coord.EndInterview(ctx, msg.Target); err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK}
	case msgSpecial:
		changed, err := r.coord.RecordSpecialSender(ctx, member)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, State: map[string]bool{"new_speaker": changed}}
	case msgPresentation:
		on, err := r.coord.TogglePresentation(ctx)
		if err != nil {
			return r.failed(msg, err)
		}
		return ServerEvent{Type: evOK, State: map[string]bool{"presentation": on}}
	case msgStatus:
		status, err := r.coord.Status(ctx)
		if err != nil {
			return r.failed(msg, err)
		}
		if !r.coord.Config().IsAdmin(member) {
			status = status.Redacted()
		}
		return ServerEvent{Type: evOK, State: status}
	default:
		return ServerEvent{Type: evRejected, Code: "unknown", Body: r.l.Localize("command.unknown", msg.Type)}
	}
}

func (r *CommandRouter) rejected(rej *coordinator.Rejection) ServerEvent {
	return ServerEvent{Type: evRejected, Code: string(rej.Code), Body: r.l.Localize(rej.Key, rej.Args...)}
}

// failed turns err into a reply. Rejections are the user's business; any
// other error is logged and reported without detail, except configuration
// problems the game master has to fix.
func (r *CommandRouter) failed(msg ClientMessage, err error) ServerEvent {
	if rej, ok := coordinator.AsRejection(err); ok {
		return r.rejected(rej)
	}
	var cfgErr *coordinator.ConfigurationError
	if errors.As(err, &cfgErr) {
		log.Warn().Err(cfgErr).Str("type", msg.Type).Msg("[lg] guild not fully configured")
		return ServerEvent{Type: evError, Code: "configuration", Body: cfgErr.Error()}
	}
	log.Error().Err(err).Str("type", msg.Type).Msg("[lg] command failed")
	return ServerEvent{Type: evError, Body: "internal error"}
}
