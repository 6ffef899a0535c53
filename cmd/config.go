package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/faelwyn/busmq/config"
)

// ConfigCommand prints the effective configuration as YAML.
var ConfigCommand = &cobra.Command{
	Use:     "config [--config <path>]",
	Short:   "Print the effective configuration",
	Long:    `Load the configuration, apply any overriding flags, and print the result as YAML. Without a config file the defaults are printed.`,
	GroupID: "commands",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		findConfig()

		cfg, err := config.Load(ConfigPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := flagsToConfig(cfg); err != nil {
			return err
		}

		return cfg.Write(cmd.OutOrStdout())
	},
}

func init() {
	ConfigCommand.Flags().StringVarP(&ConfigPath, "config", "c", "", "Path to config file")
	ConfigCommand.MarkFlagFilename("config", "yaml", "yml")

	RootCommand.AddCommand(ConfigCommand)
}
