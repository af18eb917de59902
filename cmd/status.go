package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/mrcpd/internal/agent"
	"firestige.xyz/mrcpd/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running mrcpd's connection agent for its active connection count",
	Run: func(cmd *cobra.Command, args []string) {
		runStatusCommand()
	},
}

func runStatusCommand() {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError("failed to load config", err)
	}

	count, err := agent.QueryStatus(cfg.Agent.ControlSocket)
	if err != nil {
		exitWithError("failed to query connection agent", err)
	}

	fmt.Printf("active connections: %d\n", count)
}
