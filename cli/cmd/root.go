package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/julienstroheker/hexpipe/internal/config"
	"github.com/julienstroheker/hexpipe/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg         *config.Config
	logger      *logging.Logger
	verboseFlag bool
	jsonFlag    bool
	configFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "hexpipe",
	Short: "Relays, tunnels and process pipelines",
	Long: `hexpipe - move bytes between endpoints under a small lifecycle state machine.

Tunnels join two duplex connections, exec chains processes into a pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(configFlag)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		level := logging.ParseLevel(cfg.LogLevel)
		if verboseFlag {
			level = logging.DebugLevel
		}

		format := logging.ParseFormat(cfg.LogFormat)
		if jsonFlag {
			format = logging.FormatJSON
		}

		// stdout belongs to relayed data
		logger = logging.NewWithFormatOutput(level, format, cmd.ErrOrStderr())
		logger.Debug("Logger initialized",
			logging.String("level", level.String()),
			logging.String("format", format.String()),
			logging.String("mode", cfg.Mode.String()),
		)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging (debug level)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Configuration file (environment variables take precedence)")
}

// ExitError carries the exit code of a finished pipeline
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command and exits the process on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetLogger returns the global logger instance
func GetLogger() *logging.Logger {
	return logger
}

// GetConfig returns the global config instance
func GetConfig() *config.Config {
	return cfg
}
