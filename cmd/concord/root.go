package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/concord/internal/platform"
	"github.com/aretw0/concord/pkg/adapters/fs"
	"github.com/aretw0/concord/pkg/core"
)

// app carries what every subcommand needs once flags and configuration are
// resolved.
type app struct {
	cfg    *viper.Viper
	logger *slog.Logger
}

// newRootCmd builds the command tree. Settings resolve from flags, then
// CONCORD_* environment variables, then concord.yaml at the session root.
func newRootCmd() *cobra.Command {
	a := &app{cfg: viper.New(), logger: slog.New(slog.DiscardHandler)}
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "concord",
		Short: "Coordinate concurrent edits to a shared proof tree",
		Long: `Concord reads operation logs written by devices that edit a proof tree
while disconnected. It detects conflicting edits, orders operations causally
and replays them into a replica that converges with its peers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd, configFile); err != nil {
				return err
			}

			level := slog.LevelInfo
			if a.cfg.GetBool("verbose") {
				level = slog.LevelDebug
			}

			opts := &slog.HandlerOptions{
				Level: level,
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
			slog.SetDefault(a.logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("cluster", string(core.ClusterPairwise), "Conflict clustering: pairwise or connected")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: concord.yaml at the session root)")

	rootCmd.AddCommand(
		newDetectCmd(a),
		newOrderCmd(a),
		newDepsCmd(a),
		newReplayCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *app) loadConfig(cmd *cobra.Command, file string) error {
	a.cfg.SetDefault("cluster", string(core.ClusterPairwise))
	a.cfg.SetDefault("device", "concord")
	a.cfg.SetDefault("debounce", fs.DefaultDebounce)

	a.cfg.SetEnvPrefix("CONCORD")
	a.cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.cfg.AutomaticEnv()

	if err := a.cfg.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if file != "" {
		a.cfg.SetConfigFile(file)
	} else {
		a.cfg.SetConfigName(platform.ConfigName)
		a.cfg.SetConfigType("yaml")
		if wd, err := os.Getwd(); err == nil {
			if root, err := platform.FindRoot(wd); err == nil {
				a.cfg.AddConfigPath(root)
			}
		}
	}

	if err := a.cfg.ReadInConfig(); err != nil {
		// Defaults and environment are enough without a config file.
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// options translates the resolved settings into platform options.
func (a *app) options() []platform.Option {
	return []platform.Option{
		platform.WithLogger(a.logger),
		platform.WithClustering(core.ClusteringMode(a.cfg.GetString("cluster"))),
		platform.WithInboxPattern(a.cfg.GetString("pattern")),
		platform.WithDebounce(a.cfg.GetDuration("debounce")),
		platform.WithWatcherErrorHandler(func(err error) {
			a.logger.Warn("inbox error", "error", err)
		}),
	}
}
