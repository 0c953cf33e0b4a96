// cmd/hive-client/root.go
// Root command for the `hive-client` CLI. Wires common flags and global
// initialisation (logger, config file), then adds subcommands defined in
// sibling files (invoke.go, listen.go, version.go), adapted from the
// teacher's cmd/flarego/root.go PersistentPreRunE logger-init-once pattern.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "github.com/hiveswarm/hive/internal/plugins/example/logstats"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/pkg/version"
)

var (
	cfgFile string
	logJSON bool

	rootCmd = &cobra.Command{
		Use:   "hive-client",
		Short: "hive client runtime CLI",
		Long:  "hive-client hosts the grain-system client runtime: invoke remote grains, expose local callback objects, and publish client telemetry.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")

	metrics.Register()

	rootCmd.AddCommand(newInvokeCmd())
	rootCmd.AddCommand(newListenCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "hive-client"))
		}
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("HIVE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	logging.Sugar().Infow("hive-client starting", "go_version", runtime.Version(), "version", version.String())
	return nil
}
