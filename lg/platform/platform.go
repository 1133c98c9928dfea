// Package platform describes what the game needs from the chat platform.
// The game never talks to the platform directly; it goes through these
// interfaces so the transport can be swapped out.
package platform

import (
	"context"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// Permission is a bit set of channel permissions.
type Permission uint8

const (
	PermView Permission = 1 << iota
	PermSend
)

func (p Permission) Has(q Permission) bool { return p&q == q }

// Overwrite is a channel permission overwrite for a role or a member.
type Overwrite struct {
	Allow Permission
	Deny  Permission
}

// Channel is a platform channel as seen during discovery.
type Channel struct {
	ID   string
	Name string
}

// Guild is the part of the chat platform the game drives.
type Guild interface {
	// Channels lists the channels directly under a category.
	Channels(ctx context.Context, categoryID string) ([]Channel, error)
	SetRolePermissions(ctx context.Context, channelID, roleID string, ow Overwrite) error
	SetMemberPermissions(ctx context.Context, channelID, memberID string, ow Overwrite) error
	// CanView reports whether memberID can see channelID through a role or
	// a member overwrite.
	CanView(ctx context.Context, channelID, memberID string) (bool, error)
	// ActiveThreads lists the threads of a channel that are not archived.
	ActiveThreads(ctx context.Context, channelID string) ([]string, error)
	SetThreadLocked(ctx context.Context, threadID string, locked bool) error
}

// RoleLifecycle moves players between role sets.
type RoleLifecycle interface {
	Members(ctx context.Context, roleID string) ([]string, error)
	HasRole(ctx context.Context, memberID, roleID string) (bool, error)
	// SwapRole removes from and adds to, recording reason in the audit log.
	SwapRole(ctx context.Context, memberID, from, to, reason string) error
}

// EventKind classifies notifications emitted by the game.
type EventKind string

const (
	EventPhaseChanged  EventKind = "phase_changed"
	EventVoteResolved  EventKind = "vote_resolved"
	EventRavenRevealed EventKind = "raven_revealed"
	EventSeparator     EventKind = "separator"
	EventNotice        EventKind = "notice"
)

// Event is a notification for the command layer to render and deliver.
// Exactly one of ChannelID or Member is set.
type Event struct {
	Kind      EventKind
	Channel   game.ChannelRole
	ChannelID string
	Member    string
	// Persona names the webhook identity to post as. Empty means the bot.
	Persona string
	Key     string
	Args    []any
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Localizer turns a message key and its positional arguments into text.
type Localizer interface {
	Localize(key string, args ...any) string
}
