package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobmatch-engine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the data dir",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return configInit(cmd)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and print warnings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", e.cfgPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing config")
}

func configInit(cmd *cobra.Command) error {
	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		dataDir = config.Default().App.DataDir
	}
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(dataDir, "config.yml")
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	cfg.App.DataDir = dataDir
	if err := config.SaveAtomic(path, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
