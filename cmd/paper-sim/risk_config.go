package main

import (
	"fmt"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var riskConfigCmd = &cobra.Command{
	Use:   "risk-config",
	Short: "Create and check risk configuration files",
}

var riskConfigInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default risk configuration to a .yaml or .json file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveRiskConfigFile(config.DefaultRiskConfig(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

var riskConfigShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Validate a risk configuration and print the effective values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultRiskConfig()
		if len(args) == 1 {
			var err error
			if cfg, err = config.LoadRiskConfigFile(args[0]); err != nil {
				return err
			}
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	riskConfigCmd.AddCommand(riskConfigInitCmd)
	riskConfigCmd.AddCommand(riskConfigShowCmd)
}
