package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/export"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph RUN_ID",
		Short: "Render a saved run's lineage",
		Long: `Output the lineage forest of a saved run in DOT (Graphviz), JSON, CSV
or Arrow IPC format.

  bfftrace graph run-1a2b3c4d5e6f | dot -Tsvg > lineage.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			format, err := export.ParseFormat(formatName)
			if err != nil {
				return fmt.Errorf("unsupported format %q (use 'dot', 'json', 'csv' or 'arrow')", formatName)
			}
			if format == export.FormatArrow && output == "" {
				return fmt.Errorf("arrow output is binary, use --output FILE")
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			records, err := st.RunRecords(context.Background(), args[0])
			if err != nil {
				return err
			}

			if output != "" {
				if err := writeRecordsFile(output, format, records); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d node(s) to %s\n", len(records), output)
				return nil
			}

			if format == export.FormatJSON {
				return writeJSON(cmd.OutOrStdout(), export.RenderJSON(records))
			}
			return export.Write(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, csv or arrow")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	return cmd
}
