// Package cmd is a thin demo CLI over the boxlite public API. CLI parsing
// is explicitly out of scope for the module itself (spec Non-goals); this
// package exists only as a runnable example of the embedding contract.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boxlite/boxlite"
	"github.com/boxlite/boxlite/config"
	"github.com/boxlite/boxlite/internal/logging"
)

var (
	cfgFile string
	conf    *config.Config
	engine  *boxlite.Boxlite
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "boxlite",
		Short:        "BoxLite - micro-VM container runtime",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initEngine()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if engine != nil {
				engine.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("root-dir", "", "root data directory")
	cmd.PersistentFlags().String("shim-binary", "", "boxlite-shim binary path")
	cmd.PersistentFlags().String("engine", "", "VMM engine kind")
	cmd.PersistentFlags().String("guest-init-disk", "", "guest-rootfs base image path")

	_ = viper.BindPFlag("root_dir", cmd.PersistentFlags().Lookup("root-dir"))
	_ = viper.BindPFlag("shim_binary_path", cmd.PersistentFlags().Lookup("shim-binary"))
	_ = viper.BindPFlag("engine_kind", cmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("guest_init_disk_path", cmd.PersistentFlags().Lookup("guest-init-disk"))

	viper.SetEnvPrefix("BOXLITE")
	viper.AutomaticEnv()

	cmd.AddCommand(
		pullCommand(),
		imagesCommand(),
		createCommand(),
		psCommand(),
		execCommand(),
		attachCommand(),
		stopCommand(),
		rmCommand(),
		gcCommand(),
	)

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func initEngine() error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if conf.PoolSize <= 0 {
		conf.PoolSize = runtime.NumCPU()
	}

	lvl, err := zerolog.ParseLevel(conf.Log.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logging.Configure(os.Stderr, lvl)

	e, err := boxlite.New(boxlite.BoxliteOptions{
		RootDir:           conf.RootDir,
		PoolSize:          conf.PoolSize,
		ShimBinaryPath:    conf.ShimBinaryPath,
		EngineKind:        conf.EngineKind,
		GuestInitDiskPath: conf.GuestInitDiskPath,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	engine = e
	return nil
}

func stopTimeout() int {
	if conf == nil || conf.StopTimeoutSeconds <= 0 {
		return 30 //nolint:mnd
	}
	return conf.StopTimeoutSeconds
}
