package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve bfftrace tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
bfftrace_verify, bfftrace_track and bfftrace_runs tools.

Logs go to stderr and never interleave with the protocol stream.
The track tool reads snapshot directories only under --root, the
configured snapshot dir and any --allow-dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			allowDirs, _ := cmd.Flags().GetStringSlice("allow-dir")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "bfftrace",
				Version:  version,
				Root:     root,
				Settings: cfg,
				Logger:   logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),

				AllowedDirs: allowDirs,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Run(context.Background())
		},
	}

	cmd.Flags().StringSlice("allow-dir", nil, "Extra directory the track tool may read snapshots from (repeatable)")

	return cmd
}
