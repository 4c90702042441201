package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narategithub/sos/pkg/wal"
)

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Inspect the write-ahead log backing an ODS file",
}

var walDumpCmd = &cobra.Command{
	Use:   "dump ODS_PATH",
	Short: "Print every entry logged in ODS_PATH's write-ahead log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := &wal.WAL{Path: args[0] + ".wal"}
		files, err := w.LogFiles()
		if err != nil {
			return fmt.Errorf("wal: list log files: %w", err)
		}
		entries, err := wal.ReadAll(files)
		if err != nil {
			return fmt.Errorf("wal: read: %w", err)
		}
		for _, e := range entries {
			fmt.Println(e.String())
		}
		fmt.Printf("%d entries across %d file(s)\n", len(entries), len(files))
		return nil
	},
}

func init() {
	walCmd.AddCommand(walDumpCmd)
}
