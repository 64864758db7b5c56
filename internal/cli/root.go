package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookguard/internal/config"
)

var (
	configPath string
	debug      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.hookguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log suppression and guard decisions to stderr")
}

var rootCmd = &cobra.Command{
	Use:   "hookguard",
	Short: "Serialize and deduplicate agent hook executions",
	Long: `Runs as a hook command for an AI coding agent. Each invocation reads one
event from stdin, drops it if the same event was accepted in the last few
seconds or is being handled by another process, logs it, and dispatches it
to the handler bound to its tool.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger returns the diagnostic logger: Debug level when --debug or
// HOOKGUARD_DEBUG=1 is set, Info otherwise.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv(config.EnvDebug) == "1" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func errorf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
}
