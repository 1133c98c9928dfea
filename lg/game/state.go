// Package game holds the persisted state of a running werewolf game: the
// phase, the channel registry and the small per-game flags. Values are
// snapshots; every transform returns a modified copy.
package game

import (
	"maps"
	"slices"
)

// Namespace is the store namespace every game record lives under.
const Namespace = "lg"

// State is the singleton snapshot of a running game.
type State struct {
	Phase              Phase                  `json:"phase"`
	LastSpecialSender  string                 `json:"last_special_sender,omitempty"`
	PresentationToggle bool                   `json:"presentation_toggle"`
	Channels           map[ChannelRole]string `json:"channels"`
	Interviews         []string               `json:"interviews"`
}

func (State) RecordType() string { return "game_state" }

// NewState returns the state of a game that has not started yet.
func NewState() State {
	return State{
		Phase:      FirstPhase(),
		Channels:   make(map[ChannelRole]string),
		Interviews: []string{},
	}
}

func (s State) clone() State {
	out := s
	out.Channels = maps.Clone(s.Channels)
	if out.Channels == nil {
		out.Channels = make(map[ChannelRole]string)
	}
	out.Interviews = slices.Clone(s.Interviews)
	if out.Interviews == nil {
		out.Interviews = []string{}
	}
	return out
}

// NextPhase advances the cycle by one half.
func (s State) NextPhase() State {
	out := s.clone()
	out.Phase = s.Phase.Next()
	return out
}

// RegisterChannel maps role to a platform channel id, replacing any previous
// mapping.
func (s State) RegisterChannel(role ChannelRole, id string) State {
	out := s.clone()
	out.Channels[role] = id
	return out
}

// ResolveChannel returns the channel registered for role. A missing entry
// means discovery has not seen that channel yet.
func (s State) ResolveChannel(role ChannelRole) (string, bool) {
	id, ok := s.Channels[role]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RoleOf returns the channel role a platform channel is registered under.
func (s State) RoleOf(channelID string) (ChannelRole, bool) {
	for role, id := range s.Channels {
		if id == channelID {
			return role, true
		}
	}
	return "", false
}

// AddInterview adds player to the active interviews. Adding twice is a no-op.
func (s State) AddInterview(player string) State {
	out := s.clone()
	if !slices.Contains(out.Interviews, player) {
		out.Interviews = append(out.Interviews, player)
		slices.Sort(out.Interviews)
	}
	return out
}

func (s State) RemoveInterview(player string) State {
	out := s.clone()
	out.Interviews = slices.DeleteFunc(out.Interviews, func(p string) bool { return p == player })
	return out
}

func (s State) InInterview(player string) bool {
	return slices.Contains(s.Interviews, player)
}

func (s State) SetLastSpecialSender(player string) State {
	out := s.clone()
	out.LastSpecialSender = player
	return out
}

func (s State) TogglePresentation() State {
	out := s.clone()
	out.PresentationToggle = !s.PresentationToggle
	return out
}

// Restart returns a fresh game on the same channels.
func (s State) Restart() State {
	out := NewState()
	maps.Copy(out.Channels, s.Channels)
	return out
}
