package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ncatbot/ncatbot-go/lifecycle"
	"github.com/ncatbot/ncatbot-go/logger"
)

var (
	runConfigPath     string
	runSkipPluginLoad bool
)

// RunCmd starts the bot and blocks until it is interrupted.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the gateway and run the bot until interrupted",
	Long: `Load bot.yaml, connect to the configured gateway, load every
enabled plugin, and block until SIGINT/SIGTERM is received.`,
	RunE: runRun,
}

func init() {
	RunCmd.Flags().StringVar(&runConfigPath, "config", "bot.yaml", "path to the bot configuration file")
	RunCmd.Flags().BoolVar(&runSkipPluginLoad, "no-plugins", false, "start without loading any plugin")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := lifecycle.NewManager()
	err := m.Run(ctx, lifecycle.Options{
		ConfigPath:     runConfigPath,
		SkipPluginLoad: runSkipPluginLoad,
	})
	if err != nil {
		return err
	}
	logger.Infow("ncatbot stopped")
	fmt.Fprintln(cmd.OutOrStdout(), "ncatbot stopped")
	return nil
}
