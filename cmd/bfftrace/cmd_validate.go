package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/store"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the database and every saved run for consistency",
		Long: `Run SQLite integrity and foreign-key checks, then verify that each saved
run is a well-formed forest: a single root, parents one epoch earlier,
no dangling or self references and one node per cell per epoch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			issues, err := st.Validate(context.Background())
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			if issues == nil {
				issues = []store.ValidationError{}
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"valid":       len(issues) == 0,
					"error_count": len(issues),
					"errors":      issues,
				}); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database is valid - no issues found")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d issue(s):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", issue)
				}
			}

			if len(issues) > 0 {
				return fmt.Errorf("%d validation issue(s)", len(issues))
			}
			return nil
		},
	}
}
