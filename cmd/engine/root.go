package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "engine"
)

var (
	// Used for flags.
	envFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "engine ingests job postings and ranks them against a resume",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("data-dir", "JOBMATCH_DATA_DIR"); err != nil {
		log.Fatalf("binding JOBMATCH_DATA_DIR environment variable: %v", err)
	}
	if err := viper.BindEnv("config", "JOBMATCH_CONFIG"); err != nil {
		log.Fatalf("binding JOBMATCH_CONFIG environment variable: %v", err)
	}

	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().String("config", "", "a config file (default is config.yml in the data dir)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the config, database and corpus snapshot")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "a .env file to load before reading the config (default is .env when present)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// initEnv loads .env files so credentials and JOBMATCH_* variables can live
// next to the config. Variables already set in the environment win.
func initEnv() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("loading %s: %v", envFile, err)
		}
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}
}
