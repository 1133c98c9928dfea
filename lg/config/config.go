// Package config holds the static configuration of the bot.
package config

import (
	"bytes"
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
)

// GuildConfig names the platform objects the game is played with.
type GuildConfig struct {
	AliveRole     string `mapstructure:"alive_role" toml:"alive_role"`
	DeadRole      string `mapstructure:"dead_role" toml:"dead_role"`
	RolesCategory string `mapstructure:"roles_category" toml:"roles_category"`
	MainCategory  string `mapstructure:"main_category" toml:"main_category"`
}

// HTTPConfig controls the local HTTP surface.
type HTTPConfig struct {
	// Port < 0 disables the local listener.
	Port int `mapstructure:"port" toml:"port"`
	// AuthKey, when set, is required from every client in the X-LG-Key header.
	AuthKey string `mapstructure:"auth_key" toml:"auth_key"`
	// AdminKey is required in the X-LG-Admin-Key header from admins on the
	// websocket and from every caller of /api. Empty refuses both.
	AdminKey string `mapstructure:"admin_key" toml:"admin_key"`
}

// RelayConfig controls the optional relay listener.
type RelayConfig struct {
	Servers []string `mapstructure:"servers" toml:"servers"`
	Name    string   `mapstructure:"name" toml:"name"`
	CredKey string   `mapstructure:"cred_key" toml:"cred_key"`
}

// Config holds all runtime configuration.
// Values are populated from lg.toml, LG_* env vars and CLI flags.
type Config struct {
	Guild GuildConfig `mapstructure:"guild" toml:"guild"`
	// Channels maps a channel role to the name of the channel playing it.
	Channels map[string]string `mapstructure:"channels" toml:"channels"`
	// Admins may run privileged commands.
	Admins   []string    `mapstructure:"admins" toml:"admins"`
	DataDir  string      `mapstructure:"data_dir" toml:"data_dir"`
	LogLevel string      `mapstructure:"log_level" toml:"log_level"`
	HTTP     HTTPConfig  `mapstructure:"http" toml:"http"`
	Relay    RelayConfig `mapstructure:"relay" toml:"relay"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	channels := make(map[string]string, len(game.ChannelRoles))
	for _, r := range game.ChannelRoles {
		channels[string(r)] = string(r)
	}
	return Config{
		Guild: GuildConfig{
			AliveRole:     "alive",
			DeadRole:      "dead",
			RolesCategory: "roles",
			MainCategory:  "main",
		},
		Channels: channels,
		Admins:   []string{},
		DataDir:  "",
		LogLevel: "info",
		HTTP:     HTTPConfig{Port: 8080},
		Relay:    RelayConfig{Name: "lg"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("guild.alive_role", d.Guild.AliveRole)
	v.SetDefault("guild.dead_role", d.Guild.DeadRole)
	v.SetDefault("guild.roles_category", d.Guild.RolesCategory)
	v.SetDefault("guild.main_category", d.Guild.MainCategory)
	for role, name := range d.Channels {
		v.SetDefault("channels."+role, name)
	}
	v.SetDefault("admins", d.Admins)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.auth_key", "")
	v.SetDefault("http.admin_key", "")
	v.SetDefault("relay.servers", []string{})
	v.SetDefault("relay.name", d.Relay.Name)
	v.SetDefault("relay.cred_key", "")
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load on a specific viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a TOML document strictly: unknown keys are an error. Keys
// left out keep their default value.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Channels == nil {
		cfg.Channels = make(map[string]string)
	}
	for role, name := range Defaults().Channels {
		if _, ok := cfg.Channels[role]; !ok {
			cfg.Channels[role] = name
		}
	}
	return cfg, nil
}

// ChannelName returns the configured channel name for role.
func (c Config) ChannelName(role game.ChannelRole) string {
	if name, ok := c.Channels[string(role)]; ok && name != "" {
		return name
	}
	return string(role)
}

// IsAdmin reports whether member may run privileged commands.
func (c Config) IsAdmin(member string) bool {
	for _, a := range c.Admins {
		if a == member {
			return true
		}
	}
	return false
}

// Render encodes cfg as TOML.
func Render(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
