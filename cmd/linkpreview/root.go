package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"linkpreview/internal/config"
)

// newRootCommand はコマンドツリーを毎回新しく作る. テストごとに状態を共有しないため.
func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "linkpreview",
		Short: "Link preview metadata service",
		Long: `linkpreview fetches web pages on behalf of clients and returns their
Open Graph, Twitter Card, basic and icon metadata as JSON.

Examples:
   linkpreview serve                          # Start the API and metrics servers
   linkpreview extract https://example.com    # Print metadata for a single URL`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./linkpreview.yaml or $HOME/linkpreview.yaml)")
	flags.String("log-level", "info", "Set log level (debug|info|warn|error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.Duration("timeout", 0, "Fetch timeout (overrides fetch.timeout)")
	flags.Bool("allow-private-networks", false, "Allow fetching private and loopback addresses")

	bindFlags(v, flags, map[string]string{
		"log.level":                    "log-level",
		"log.json":                     "log-json",
		"fetch.timeout":                "timeout",
		"fetch.allow_private_networks": "allow-private-networks",
	})

	load := func() (*config.Config, error) {
		return config.Load(v, configFile)
	}

	cmd.AddCommand(newServeCommand(v, load))
	cmd.AddCommand(newExtractCommand(load))
	return cmd
}

// bindFlags はフラグをviperのキーに結び付ける. 明示的に指定されたフラグだけが設定を上書きする.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if flag := flags.Lookup(name); flag != nil {
			_ = v.BindPFlag(key, flag)
		}
	}
}
