package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/framemux/internal/config"
	"github.com/danmuck/framemux/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	address    string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "muxctl",
		Short:         "Framed request/response multiplexer client and reference peer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if opts.logLevel != "" && !logging.SetLevel(opts.logLevel) {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			cfg := config.Default()
			if path := strings.TrimSpace(opts.configPath); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if opts.address != "" {
				cfg.Address = opts.address
			}
			opts.cfg = cfg
			return cfg.Validate()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "trace|debug|info|warn|error|disabled")
	cmd.PersistentFlags().StringVar(&opts.address, "address", "", "peer address, overrides config")

	cmd.AddCommand(newServeCmd(opts), newSendCmd(opts), newRunCmd(opts))
	return cmd
}
