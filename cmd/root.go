// Package cmd implements mrcpd's CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mrcpd",
	Short:   "mrcpd is an MRCPv2 (RFC 6787) connection agent and media engine",
	Version: version,
	Long: `mrcpd implements the Media Resource Control Protocol version 2
client/server role, its connection agent reactor, and the media-plane
composition graph that mixes and bridges the audio streams a session's
terminations carry.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/mrcpd/mrcpd.yml", "config file path")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
