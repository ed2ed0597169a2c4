package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/backup"
	"github.com/nvandessel/bfftrace/internal/config"
	"github.com/nvandessel/bfftrace/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive all saved runs to a compressed file",
		Long: `Write every saved run and its lineage nodes to a checksummed gzip archive.

Default location: <root>/.bfftrace/backups/bfftrace-backup-YYYYMMDD-HHMMSS.json.gz
Older archives in the same directory are pruned by the backup retention
settings (default: keep the last 10).

Examples:
  bfftrace backup                                      # Archive to the default location
  bfftrace backup --output .bfftrace/backups/a.json.gz # Archive to a specific file
  bfftrace backup list                                 # List archives
  bfftrace backup verify <file>                        # Check an archive's checksum`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = backup.GeneratePath(backupDir(root, cfg))
			} else if err := pathutil.ValidatePath(outputPath, pathutil.BackupDirs(root, cfg.Backup.Dir)); err != nil {
				return fmt.Errorf("backup path rejected: %w", err)
			}

			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			archive, err := backup.Backup(context.Background(), st, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			pruning, err := backup.NewPruning(cfg.Backup.MaxCount, cfg.Backup.MaxAge)
			if err != nil {
				return err
			}
			if _, err := backup.Prune(filepath.Dir(outputPath), pruning, time.Now()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to prune old archives: %v\n", err)
			}

			if jsonOut {
				var size int64
				if info, err := os.Stat(outputPath); err == nil {
					size = info.Size()
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":       outputPath,
					"runs":       len(archive.Runs),
					"records":    archive.RecordCount(),
					"version":    archive.Version,
					"size_bytes": size,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d runs, %d nodes\n", len(archive.Runs), archive.RecordCount())
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in <root>/.bfftrace/backups/)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List run archives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			infos, err := backup.ListArchives(backupDir(root, cfg))
			if err != nil {
				return err
			}
			if infos == nil {
				infos = []backup.ArchiveFile{}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"backups": infos,
					"count":   len(infos),
				})
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups. Use 'bfftrace backup' to create one.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tRUNS\tNODES\tSIZE\tCREATED")
			for _, b := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
					filepath.Base(b.Path), b.Runs, b.Records, b.Size,
					b.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Verify an archive's SHA-256 checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			err := backup.VerifyChecksum(path)
			if jsonOut {
				out := map[string]any{"file": path, "valid": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
			} else if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "OK: checksum verified\n  File: %s\n", path)
			}
			if err != nil {
				return fmt.Errorf("checksum verification failed: %w", err)
			}
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Restore saved runs from an archive",
		Long: `Restore runs from an archive created by 'bfftrace backup'.
Run IDs and creation times are preserved.

Modes:
  merge   - Skip runs whose ID already exists (default)
  replace - Overwrite runs whose ID already exists`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := pathutil.ValidatePath(args[0], pathutil.BackupDirs(root, cfg.Backup.Dir)); err != nil {
				return fmt.Errorf("restore path rejected: %w", err)
			}

			st, err := openStore(root, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			result, err := backup.Restore(context.Background(), st, args[0], mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(cmd.OutOrStdout(), "  Runs: %d restored, %d skipped, %d replaced\n",
				result.RunsRestored, result.RunsSkipped, result.RunsReplaced)
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")

	return cmd
}

// backupDir is the configured archive directory or <root>/.bfftrace/backups.
func backupDir(root string, cfg *config.Config) string {
	if cfg.Backup.Dir != "" {
		return cfg.Backup.Dir
	}
	return pathutil.DefaultBackupDir(root)
}
