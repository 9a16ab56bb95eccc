package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feiskyer/toolagent/internal/config"
)

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		for _, hint := range errors.GetAllHints(err) {
			_, _ = fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "toolagent",
		Short:        "Tool-using language model agent",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	config.SetDefaults(viper.GetViper())

	cmd.PersistentFlags().String("config", "", "Config file path, YAML or TOML (optional).")
	cmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn or error.")
	cmd.PersistentFlags().String("log-format", "console", "Log format: console or json.")
	cmd.PersistentFlags().Bool("debug", false, "Log every model turn and tool call.")
	_ = viper.BindPFlag(config.KeyConfigFile, cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag(config.KeyLogLevel, cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(config.KeyLogFormat, cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag(config.KeyDebug, cmd.PersistentFlags().Lookup("debug"))

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() error {
	config.BindEnv(viper.GetViper())
	return config.ReadConfigFile(viper.GetViper(), strings.TrimSpace(viper.GetString(config.KeyConfigFile)))
}
