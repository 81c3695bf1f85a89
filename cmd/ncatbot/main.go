package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ncatbot/ncatbot-go/cmd/ncatbot/commands"
	"github.com/ncatbot/ncatbot-go/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ncatbot",
	Short: "ncatbot - a QQ bot framework driven by a gateway connection and a plugin system",
	Long: `ncatbot connects to a OneBot-compatible gateway, dispatches inbound
events through a priority-ordered event bus, and runs hot-reloadable
plugins against a shared, RBAC-gated API surface.

Available commands:
  run     - connect to the gateway and run until interrupted
  plugin  - discover, list, and install plugins
  version - show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "emit structured JSON logs instead of human-readable output")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase output verbosity (repeat for more detail)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PluginCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
