package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage beatgrid configuration settings and sound kits.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configKitsCmd = &cobra.Command{
	Use:   "kits",
	Short: "List the kits declared in the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !config.ConfigFileExists(cfgFile) {
			fmt.Printf("* %s (built-in)\n", config.DefaultKit)
			return nil
		}

		root, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}
		for _, name := range root.KitNames() {
			marker := " "
			if name == cfg.KitName {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [kit]",
	Short: "Set the active kit in the configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveKit(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active kit set to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKitsCmd)
	configCmd.AddCommand(configUseCmd)
}
