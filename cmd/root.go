package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conneroisu/roaster/internal/config"
	"github.com/conneroisu/roaster/internal/errors"
	"github.com/conneroisu/roaster/internal/logging"
	"github.com/conneroisu/roaster/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roaster",
	Short: "Serve CoffeeScript sources as compiled JavaScript",
	Long: `Roaster compiles CoffeeScript sources to JavaScript on request, caches the
output on disk and recompiles only when a source changes. Production
deployments precompile every source at startup and minify the output.

Quick Start:
  roaster init --example          Write .roaster.yml and an example source
  roaster serve                   Serve assets with live reload
  roaster precompile              Compile every source ahead of deployment
  roaster compile app.coffee      Print the compiled JavaScript of one file`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .roaster.yml, can also use ROASTER_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("mode", config.ModeDev, "run mode (dev, prod)")
	flags.String("root", ".", "application root holding the asset directory")

	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.BindPFlag("log-format", flags.Lookup("log-format"))
	viper.BindPFlag("mode", flags.Lookup("mode"))
	viper.BindPFlag("assets.root", flags.Lookup("root"))
}

// normalizeFlagName accepts --log_level for --log-level.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig selects the configuration file and enables ROASTER_
// environment overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ROASTER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(services.ConfigFileName, ".yml"))
	}

	viper.SetEnvPrefix("ROASTER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads and validates the configuration, attaching suggestions
// when it is invalid.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		configPath := viper.ConfigFileUsed()
		return nil, errors.NewEnhancedError(
			"Failed to load configuration",
			err,
			errors.ConfigurationError(err, configPath),
		)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.CLIError("roaster", "invalid log level", err)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.LogFormat,
		Output: out,
	}), nil
}

// newRuntime loads the configuration, lets adjust tweak it, and wires the
// shared components.
func newRuntime(cmd *cobra.Command, adjust func(*config.Config)) (*services.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return services.NewRuntime(cfg, logger)
}
