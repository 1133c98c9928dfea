package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/config"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/vote"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	RunE:  runConfig,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the persisted game",
	Long:  "reset puts the stored game back to its defaults and drops every vote session. Run it while the bot is stopped.",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(resetCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	data, err := config.Render(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	for _, v := range config.Validate(cfg) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", v)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DataDir == "" {
		return errors.New("no data dir configured; nothing is persisted")
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := game.Reset(ctx, st); err != nil {
		return fmt.Errorf("reset game: %w", err)
	}
	n, err := vote.RemoveAll(ctx, st)
	if err != nil {
		return fmt.Errorf("drop sessions: %w", err)
	}
	log.Info().Int("sessions", n).Msg("[lg] game reset")
	fmt.Fprintf(cmd.OutOrStdout(), "game reset, %d vote sessions removed\n", n)
	return nil
}
