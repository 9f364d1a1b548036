package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the master table from a URL",
	Long: `Downloads the master from an http(s) or ftp URL into the destination
directory. A file of the same name already there is kept, renamed with a
_YYYYMMDD_HHMMSS suffix.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = cfg.Master.Source
		}
		if source == "" {
			return eris.New("a source URL is required (--source or PRICING_MASTER_SOURCE)")
		}
		dest := cfg.Fetch.Dir
		if cmd.Flags().Changed("dest") {
			dest, _ = cmd.Flags().GetString("dest")
		}

		path, err := initResolver().Resolve(cmd.Context(), source, dest)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("source", "", "URL of the master file (default from master.source)")
	fetchCmd.Flags().String("dest", "", "directory to download into (default from fetch.dir)")
	rootCmd.AddCommand(fetchCmd)
}
