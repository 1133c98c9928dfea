package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/config"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/coordinator"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/dispatch"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform/local"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
)

var rootCmd = &cobra.Command{
	Use:   "lg",
	Short: "Werewolf game master bot",
	Long:  "lg runs a werewolf game: day/night phases, votes and the channel permissions that go with them.",
	RunE:  runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	pflags := rootCmd.PersistentFlags()
	pflags.String("config", "", "config file (default ./lg.toml)")
	pflags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pflags.String("data-dir", "", "directory of the persistent store; empty keeps the game in memory")
	_ = viper.BindPFlag("log_level", pflags.Lookup("log-level"))
	_ = viper.BindPFlag("data_dir", pflags.Lookup("data-dir"))

	flags := rootCmd.Flags()
	flags.StringSlice("server-url", nil, "relayserver base URL(s); repeat or comma-separated")
	flags.Int("port", 8080, "local HTTP port (negative to disable)")
	flags.String("name", "lg", "backend display name on the relay")
	flags.String("cred-key", "", "optional credential key to use for the listener (base64 encoded)")
	flags.String("ws-auth-key", "", "optional shared secret required from clients via X-LG-Key header")
	flags.String("admin-key", "", "secret required from admins and /api callers via X-LG-Admin-Key header")
	_ = viper.BindPFlag("relay.servers", flags.Lookup("server-url"))
	_ = viper.BindPFlag("http.port", flags.Lookup("port"))
	_ = viper.BindPFlag("relay.name", flags.Lookup("name"))
	_ = viper.BindPFlag("relay.cred_key", flags.Lookup("cred-key"))
	_ = viper.BindPFlag("http.auth_key", flags.Lookup("ws-auth-key"))
	_ = viper.BindPFlag("http.admin_key", flags.Lookup("admin-key"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lg")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("LG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute lg command")
	}
}

// loadConfig reads and validates the configuration and sets up logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if violations := config.Validate(cfg); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return config.Config{}, fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openStore(cfg config.Config) (*store.Store, error) {
	if cfg.DataDir == "" {
		log.Info().Msg("[lg] no data dir; game kept in memory")
		return store.New(store.NewMemoryBackend()), nil
	}
	backend, err := store.OpenPebble(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("dir", cfg.DataDir).Msg("[lg] persistent store opened")
	return store.New(backend), nil
}

// seedGuild creates one channel per channel role, named as configured, so
// that discovery finds a complete guild in standalone mode. Announcements are
// readable by every player, dead or alive.
func seedGuild(ctx context.Context, g *local.Guild, cfg config.Config) error {
	inMain := map[game.ChannelRole]bool{game.ChannelVillageAnnouncements: true}
	for _, r := range game.DayChannels {
		inMain[r] = true
	}
	for _, role := range game.ChannelRoles {
		category := cfg.Guild.RolesCategory
		if inMain[role] {
			category = cfg.Guild.MainCategory
		}
		id := g.AddChannel(category, cfg.ChannelName(role))
		switch role {
		case game.ChannelSubjects:
			if _, err := g.AddThread(id); err != nil {
				return err
			}
		case game.ChannelVillageAnnouncements:
			for _, r := range []string{cfg.Guild.AliveRole, cfg.Guild.DeadRole} {
				if err := g.SetRolePermissions(ctx, id, r, platform.Overwrite{Allow: platform.PermView}); err != nil {
					return err
				}
			}
		}
	}
	for _, admin := range cfg.Admins {
		g.AddMember(admin)
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	guild := local.NewGuild(messages)
	if err := seedGuild(ctx, guild, cfg); err != nil {
		return fmt.Errorf("seed guild: %w", err)
	}
	coord := coordinator.New(st, guild, guild, guild, cfg)
	if err := coord.Discover(ctx); err != nil {
		return fmt.Errorf("discover channels: %w", err)
	}

	disp := dispatch.New(64)
	defer disp.Close()
	handler := NewHTTPServer(coord, NewCommandRouter(coord, disp, messages), guild)

	var (
		ln     net.Listener
		client *sdk.RDClient
	)

	servers := make([]string, 0, len(cfg.Relay.Servers))
	for _, raw := range cfg.Relay.Servers {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			servers = append(servers, trimmed)
		}
	}
	if len(servers) > 0 {
		cred := sdk.NewCredential()
		if cfg.Relay.CredKey != "" {
			key, err := base64.StdEncoding.DecodeString(cfg.Relay.CredKey)
			if err != nil {
				return fmt.Errorf("decode cred key: %w", err)
			}
			cred2, err := cryptoops.NewCredentialFromPrivateKey(key)
			if err != nil {
				return fmt.Errorf("new credential from private key: %w", err)
			}
			cred = cred2
		}

		c, err := sdk.NewClient(func(rc *sdk.RDClientConfig) {
			rc.BootstrapServers = servers
		})
		if err != nil {
			return fmt.Errorf("new client: %w", err)
		}
		listener, err := c.Listen(cred, cfg.Relay.Name, []string{"http/1.1"})
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("listen: %w", err)
		}
		client = c
		ln = listener
		log.Info().Str("name", cfg.Relay.Name).Msg("[lg] relay listener enabled")
	} else {
		log.Info().Msg("[lg] relay disabled; running local mode only")
	}

	mux := handler.Router()
	if ln != nil {
		go func() {
			if err := http.Serve(ln, mux); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				log.Error().Err(err).Msg("[lg] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.HTTP.Port >= 0 {
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[lg] serving locally at http://127.0.0.1:%d", cfg.HTTP.Port)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[lg] local http stopped")
			}
		}()
	}

	<-ctx.Done()
	if ln != nil {
		_ = ln.Close()
	}
	if client != nil {
		_ = client.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[lg] http server shutdown error")
		}
	}
	log.Info().Msg("[lg] shutdown complete")
	return nil
}
