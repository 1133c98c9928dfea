package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// Violation is one problem found in a configuration.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// Validate checks cfg and returns every violation found. It never mutates
// cfg and has no side effects.
func Validate(cfg Config) []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	required := []struct {
		field string
		value string
	}{
		{"guild.alive_role", cfg.Guild.AliveRole},
		{"guild.dead_role", cfg.Guild.DeadRole},
		{"guild.roles_category", cfg.Guild.RolesCategory},
		{"guild.main_category", cfg.Guild.MainCategory},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			add(r.field, "is required")
		}
	}
	if cfg.Guild.AliveRole != "" && cfg.Guild.AliveRole == cfg.Guild.DeadRole {
		add("guild.dead_role", "must differ from guild.alive_role")
	}

	roles := make([]string, 0, len(cfg.Channels))
	for role := range cfg.Channels {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		if !game.ChannelRole(role).Valid() {
			add("channels."+role, "unknown channel role")
		}
	}
	seen := make(map[string]game.ChannelRole)
	for _, role := range game.ChannelRoles {
		name := cfg.ChannelName(role)
		if prev, ok := seen[name]; ok {
			add("channels."+string(role), "channel name %q already used by %s", name, prev)
			continue
		}
		seen[name] = role
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("log_level", "unknown level %q", cfg.LogLevel)
	}
	if cfg.HTTP.Port > 65535 {
		add("http.port", "must be at most 65535")
	}
	if cfg.HTTP.Port < 0 && len(cfg.Relay.Servers) == 0 {
		add("http.port", "local listener disabled and no relay server configured")
	}
	if len(cfg.Admins) > 0 && cfg.HTTP.AdminKey == "" {
		add("http.admin_key", "is required when admins are set")
	}
	if len(cfg.Relay.Servers) > 0 && strings.TrimSpace(cfg.Relay.Name) == "" {
		add("relay.name", "is required when relay servers are set")
	}
	return out
}
