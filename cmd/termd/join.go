package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/config"
)

func newJoinCmd() *cobra.Command {
	var (
		flags       serviceFlags
		projectID   uint64
		compression string
	)

	cmd := &cobra.Command{
		Use:     "join <host-addr>",
		Short:   "Proxy the terminals of a project hosted elsewhere",
		Example: `  termd join build-box:7070 --project-id 3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Process()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			cfg.Remote.Address = args[0]
			cfg.Remote.Listen = ""
			if cmd.Flags().Changed("project-id") {
				cfg.Remote.ProjectID = projectID
			}
			if cmd.Flags().Changed("compression") {
				cfg.Remote.Compression = compression
			}
			return run(cfg)
		},
	}

	flags.register(cmd)
	cmd.Flags().Uint64Var(&projectID, "project-id", 0, "remote project id (REMOTE_PROJECT_ID)")
	cmd.Flags().StringVar(&compression, "compression", "", `"zstd" or "" (REMOTE_COMPRESSION)`)
	return cmd
}
