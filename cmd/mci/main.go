package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/franz/music-indexer/internal/app"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes beyond the generic failure: configuration problems and an
// unusable music root get distinct codes so supervisors can tell a bad
// deployment from a bad disk.
const (
	exitFailure       = 1
	exitInvalidConfig = 2
	exitRootUnusable  = 3
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mci",
		Short: "Music Collection Indexer - scan and index your local music collection",
		Long: `mci (Music Collection Indexer) maintains metadata for a folder-organized
music collection. It scans band folders, reconciles what it finds on disk
with per-band JSON metadata files, and keeps a collection-wide index with
statistics, structure analysis and compliance scoring.

All state lives inside the collection itself: .band_metadata.json per band
folder, .collection_index.json and .collection_scans.db at the root.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mci.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "", "music collection root (absolute path)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mci")
		viper.SetConfigType("yaml")
	}

	// The environment variable names are part of the service contract,
	// so each key is bound explicitly instead of using a prefix.
	viper.BindEnv("root", "MUSIC_ROOT_PATH")
	viper.BindEnv("cache-days", "CACHE_DURATION_DAYS")
	viper.BindEnv("log-level", "LOG_LEVEL")
	viper.BindEnv("workers", "MAX_SCAN_WORKERS")
	viper.BindEnv("batch-size", "BATCH_SIZE")
	viper.BindEnv("lock-timeout", "LOCK_TIMEOUT_SECONDS")
	viper.BindEnv("op-timeout", "OPERATION_TIMEOUT_SECONDS")

	setDefaults()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch {
		case errors.Is(err, util.ErrInvalidConfig):
			os.Exit(exitInvalidConfig)
		case errors.Is(err, app.ErrRootUnusable):
			os.Exit(exitRootUnusable)
		}
		os.Exit(exitFailure)
	}
}
