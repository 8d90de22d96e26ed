package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/server"
)

// flags shared by every command that starts the service.
type serviceFlags struct {
	port         string
	host         string
	logLevel     string
	dev          bool
	settingsFile string
	worktrees    []string
}

func (f *serviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.port, "port", "", "HTTP port (PORT)")
	cmd.Flags().StringVar(&f.host, "host", "", "HTTP bind address (HOST)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "development logging (LOG_DEV)")
	cmd.Flags().StringVar(&f.settingsFile, "settings", "", "global terminal settings file (TERMINAL_SETTINGS_FILE)")
	cmd.Flags().StringSliceVar(&f.worktrees, "worktree", nil, "project worktree root, repeatable (TERMINAL_WORKTREES)")
}

// apply overrides environment values with flags set on the command line.
func (f *serviceFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("dev") {
		cfg.Logging.Development = f.dev
	}
	if changed("settings") {
		cfg.Terminal.SettingsFile = f.settingsFile
	}
	if changed("worktree") {
		cfg.Terminal.Worktrees = f.worktrees
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "termd",
		Short: "Project terminal service",
		Long: `termd runs interactive shells and task commands on ptys for a project,
serves them over HTTP and WebSocket, and can host them for remote guests or
join a project hosted elsewhere.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newJoinCmd())
	return root
}

// run starts the service with cfg until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	return srv.Run(ctx)
}
