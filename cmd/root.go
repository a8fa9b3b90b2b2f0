package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faceverify",
	Short: "Face verification service with liveness and anti-spoofing checks",
	Long: `faceverify verifies that a camera burst shows a live person who matches an
enrolled identity. Bursts pass a gaze-head and skin texture liveness check,
a replay device filter and a pose gate before the face descriptor is
compared with the enrolled gallery.

Run "faceverify serve" for the HTTP API or use the subcommands to verify,
identify and enrol from local image files.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: json or console (overrides LOG_FORMAT)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
