package main

import (
	"time"

	"github.com/franz/music-indexer/internal/app"
	"github.com/spf13/viper"
)

// setDefaults registers the documented defaults for every configuration
// key. Precedence stays with viper: flag > environment > config file >
// default.
func setDefaults() {
	viper.SetDefault("cache-days", 30)
	viper.SetDefault("log-level", "INFO")
	viper.SetDefault("workers", 4)
	viper.SetDefault("batch-size", 100)
	viper.SetDefault("lock-timeout", 5)
	viper.SetDefault("op-timeout", 30)
	viper.SetDefault("metadata-cache-ttl", time.Hour)
	viper.SetDefault("exclude", []string{})
}

// resolveConfig assembles the service configuration from viper.
// --verbose and --quiet override the configured log level, in that
// order of precedence.
func resolveConfig() *app.Config {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") {
		logLevel = "DEBUG"
	}
	if viper.GetBool("quiet") {
		logLevel = "ERROR"
	}

	return &app.Config{
		Root:             viper.GetString("root"),
		CacheDays:        viper.GetInt("cache-days"),
		LogLevel:         logLevel,
		Workers:          viper.GetInt("workers"),
		BatchSize:        viper.GetInt("batch-size"),
		LockTimeout:      time.Duration(viper.GetInt("lock-timeout")) * time.Second,
		OpTimeout:        time.Duration(viper.GetInt("op-timeout")) * time.Second,
		MetadataCacheTTL: viper.GetDuration("metadata-cache-ttl"),
		Exclude:          viper.GetStringSlice("exclude"),
		Version:          Version,
	}
}

// newApp builds the service from the resolved configuration. showBar
// requests a progress bar for scans; the scanner still suppresses it
// when stderr is not a terminal or quiet mode is on.
func newApp(showBar bool) (*app.App, error) {
	cfg := resolveConfig()
	cfg.ShowBar = showBar
	return app.New(cfg)
}
