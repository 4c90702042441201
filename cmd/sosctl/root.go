package main

import (
	"github.com/spf13/cobra"

	"github.com/narategithub/sos/internal/metrics"
	"github.com/narategithub/sos/internal/obslog"
	"github.com/narategithub/sos/pkg/container"
)

var (
	flagPageSize    uint32
	flagInitialSize uint64
	flagWAL         bool
	flagDebug       bool
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "sosctl",
	Short: "Administrative CLI for sos object data store containers",
}

func init() {
	rootCmd.PersistentFlags().Uint32Var(&flagPageSize, "page-size", 0, "ODS page size in bytes (default 4096)")
	rootCmd.PersistentFlags().Uint64Var(&flagInitialSize, "initial-size", 0, "initial ODS file size in bytes")
	rootCmd.PersistentFlags().BoolVar(&flagWAL, "wal", false, "enable the write-ahead log on every opened ODS")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "attach allocation-site provenance to handles")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(walCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func containerOptions() container.Options {
	return container.Options{
		PageSize:    flagPageSize,
		InitialSize: flagInitialSize,
		Debug:       flagDebug,
		WALEnabled:  flagWAL,
		Log:         obslog.NewLogger(obslog.Config{Level: flagLogLevel, Pretty: true}),
		Metrics:     metrics.NewMetrics(),
	}
}
