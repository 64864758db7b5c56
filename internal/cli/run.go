package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookguard/internal/coordinator"
	"github.com/ppiankov/hookguard/internal/hookerr"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Handle one hook event read from stdin",
	Long: `Reads a single JSON hook event from stdin and processes it.

Exit status is 0 when the event was handled or deliberately skipped, and 2
when a warning, a failed formatter command, or a fatal error was reported on
stderr.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		code := runHook(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		stop()
		os.Exit(code)
	},
}

// runHook processes one event and returns the process exit code.
func runHook(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return hookerr.Report(stderr, hookerr.NewFatal("config", err))
	}
	logger := newLogger(stderr)

	c, err := coordinator.Open(cfg, stdout, logger)
	if err != nil {
		return hookerr.Report(stderr, hookerr.NewFatal("setup", err))
	}
	defer c.Close()

	res, err := c.Run(ctx, stdin)
	logger.Debug("hook finished", "state", res.State.String(), "route", res.Route.String(), "fingerprint", res.Fingerprint.String())
	return hookerr.Report(stderr, err)
}
