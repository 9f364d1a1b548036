package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and list master table backups",
}

// -- backup create --

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Copy the master into its backups directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		master := masterFlag(cmd)
		path, err := initBackups().Backup(master)
		if err != nil {
			return eris.Wrap(err, "backup create")
		}
		zap.L().Info("backup created", zap.String("master", master), zap.String("backup", path))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

// -- backup list --

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups of the master, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		master := masterFlag(cmd)
		entries, err := initBackups().List(master)
		if err != nil {
			return eris.Wrap(err, "backup list")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No backups found.")
			return nil
		}
		formatBackupList(cmd.OutOrStdout(), entries)
		return nil
	},
}

// masterFlag returns --master, falling back to master.path.
func masterFlag(cmd *cobra.Command) string {
	if cmd.Flags().Changed("master") {
		m, _ := cmd.Flags().GetString("master")
		return m
	}
	return cfg.Master.Path
}

// formatBackupList writes a tabular list of backups to out.
func formatBackupList(out io.Writer, entries []backup.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED")
	_, _ = fmt.Fprintln(w, "----\t----\t--------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", e.Path, e.Size, e.ModTime.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}

func init() {
	backupCmd.PersistentFlags().String("master", "", "master table path (default from master.path)")
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	rootCmd.AddCommand(backupCmd)
}
