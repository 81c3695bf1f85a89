package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ncatbot/ncatbot-go/config"
	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/pluginsys"
)

// PluginCmd groups the plugin-management subcommands.
var PluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Discover, list, and install plugins",
}

var pluginConfigPath string

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins and their resolved load order",
	RunE:  runPluginList,
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <name> <url>",
	Short: "Fetch a plugin's source tree into the plugin directory",
	Long: `Install pulls a plugin via go-getter (git, http, or local archive
sources are all accepted) into <plugins_dir>/<name>. The plugin is
picked up on the next "ncatbot run" or hot-reload cycle, it is not
loaded immediately.`,
	Args: cobra.ExactArgs(2),
	RunE: runPluginInstall,
}

func init() {
	PluginCmd.PersistentFlags().StringVar(&pluginConfigPath, "config", "bot.yaml", "path to the bot configuration file")
	PluginCmd.AddCommand(pluginListCmd)
	PluginCmd.AddCommand(pluginInstallCmd)
}

func runPluginList(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Load(pluginConfigPath)
	if err != nil {
		return errors.Wrap(err, "plugin list: load config")
	}

	discovery := pluginsys.NewDiscovery(cfg.Plugin.PluginsDir)
	if _, err := discovery.InspectAll(); err != nil {
		return errors.Wrap(err, "plugin list: discover")
	}
	order, err := pluginsys.ResolveOrder(discovery.Manifests())
	if err != nil {
		return errors.Wrap(err, "plugin list: resolve load order")
	}

	manifests := discovery.Manifests()
	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no plugins discovered")
		return nil
	}

	for _, name := range names {
		m := manifests[name]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Name, m.Version, m.Description)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nload order: %v\n", order)
	return nil
}

func runPluginInstall(cmd *cobra.Command, args []string) error {
	name, url := args[0], args[1]

	cfg, _, err := config.Load(pluginConfigPath)
	if err != nil {
		return errors.Wrap(err, "plugin install: load config")
	}

	if err := pluginsys.Install(cmd.Context(), cfg.Plugin.PluginsDir, name, url); err != nil {
		return errors.Wrap(err, "plugin install")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %q from %s\n", name, url)
	return nil
}
