package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "selflearn",
	Short: "self-learning content router and budget governor",
	Long: `selflearn routes newsroom content between generation tiers, learns
from editorial and engagement feedback, and keeps spending inside the
configured budget envelope.`,
	SilenceUsage: true,
}

// exitRollback is set by the cycle command so the scheduler can tell a
// rollback apart from a clean run.
var exitRollback bool

// Execute runs the CLI and returns the process exit code:
// 0 on success or a minimal cycle, 1 on error, 2 when a learning cycle
// executed a rollback.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	if exitRollback {
		return 2
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to configuration file")
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(simulateCmd)
}
