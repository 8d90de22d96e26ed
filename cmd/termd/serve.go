package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/config"
)

func newServeCmd() *cobra.Command {
	var (
		flags     serviceFlags
		listen    string
		projectID uint64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run local terminals, optionally hosting them for remote guests",
		Example: `  termd serve --worktree ~/src/app
  termd serve --worktree ~/src/app --listen :7070 --project-id 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Process()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if cmd.Flags().Changed("listen") {
				cfg.Remote.Listen = listen
			}
			if cmd.Flags().Changed("project-id") {
				cfg.Remote.ProjectID = projectID
			}
			// A hosting process owns its terminals.
			cfg.Remote.Address = ""
			return run(cfg)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC address to host terminals on (REMOTE_LISTEN)")
	cmd.Flags().Uint64Var(&projectID, "project-id", 0, "project id guests address (REMOTE_PROJECT_ID)")
	return cmd
}
