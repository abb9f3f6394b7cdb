package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"linkpreview/internal/config"
)

// cliClientKey はCLIからの取得に使うクライアントキー
const cliClientKey = "cli"

func newExtractCommand(load func() (*config.Config, error)) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Fetch a single URL and print its metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			c, err := newComponents(cfg)
			if err != nil {
				return err
			}
			defer c.logger.Close()

			md, err := c.preview.Preview(cmd.Context(), cliClientKey, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(md)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Print compact JSON")
	return cmd
}
