package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quarrylabs/skillstore/internal/config"
	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/paths"
	"github.com/quarrylabs/skillstore/internal/presentation"
	"github.com/quarrylabs/skillstore/internal/store"
)

var (
	version   = "dev"
	cfgFile   string
	rootFlag  string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skillstore",
	Short: "A transactional, layered skill registry",
	Long: `skillstore manages a local registry of skill definitions layered by
precedence (base, org, project, user). Writes go through a dual-backend
transaction: an indexed SQLite store for queries and a git content archive
for history and restore. All output is JSON.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .skillstore/config.yaml, then ~/.config/skillstore/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "",
		"registry root directory (default: ~/.skillstore)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (SKILLSTORE_LOG, default: debug.log)")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("layer_order", defaults.LayerOrder)
	viper.SetDefault("resolution.conflict_strategy", defaults.Resolution.ConflictStrategy)
	viper.SetDefault("resolution.merge_strategy", defaults.Resolution.MergeStrategy)
	viper.SetDefault("lock.timeout", defaults.Lock.Timeout)
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("tombstones.retention_days", defaults.Tombstones.RetentionDays)
	viper.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	viper.SetDefault("watcher.debounce", defaults.Watcher.Debounce)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .skillstore/config.yaml (current directory)
		// 2. ~/.config/skillstore/config.yaml (user config)
		if _, err := os.Stat(".skillstore/config.yaml"); err == nil {
			viper.SetConfigFile(".skillstore/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "skillstore"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere: continue with defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	_ = viper.Unmarshal(&cfg)

	if debugFlag || os.Getenv("SKILLSTORE_DEBUG") != "" {
		logPath := os.Getenv("SKILLSTORE_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		if _, err := log.Init(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: initializing logging: %v\n", err)
		}
	}
}

// openStore assembles the store from flags and config. The caller owns the
// returned store and must Close it.
func openStore(ctx context.Context) (*store.Store, error) {
	root := rootFlag
	if root == "" {
		root = cfg.Root
	}
	cfg.Root = paths.ResolveRoot(root)

	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening registry at %s: %w", cfg.Root, err)
	}
	return s, nil
}

func formatter() *presentation.Formatter {
	return presentation.NewFormatter(os.Stdout)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
