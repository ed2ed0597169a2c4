package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved tracking runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			deleteID, _ := cmd.Flags().GetString("delete")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()

			if deleteID != "" {
				if err := st.DeleteRun(ctx, deleteID); err != nil {
					return fmt.Errorf("delete run: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": deleteID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", deleteID)
				return nil
			}

			runs, err := st.ListRuns(ctx)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if runs == nil {
				runs = []store.Run{}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved runs. Use 'bfftrace track --save' to store one.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEPOCHS\tROOT\tMODE\tNODES\tCREATED\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d-%d\t%v\t%s\t%d\t%s\t%s\n",
					r.ID, r.StartEpoch, r.EndEpoch, r.Root, r.Mode, r.Nodes,
					r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("delete", "", "Delete the run with this ID")

	return cmd
}
