package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookguard/internal/envelope"
	"github.com/ppiankov/hookguard/internal/identity"
)

var (
	fpSession string
	fpEvent   string
	fpTool    string
)

func init() {
	fingerprintCmd.Flags().StringVar(&fpSession, "session", "", "Session id")
	fingerprintCmd.Flags().StringVar(&fpEvent, "event", "", "Hook event name, e.g. PostToolUse")
	fingerprintCmd.Flags().StringVar(&fpTool, "tool", "", "Tool name, e.g. Write")
	_ = fingerprintCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(fingerprintCmd)
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the execution fingerprint of an event",
	Long: `Prints the fingerprint hookguard derives from session, event and tool. The
execution guard for the event is <log_dir>/execution_<fingerprint>.lock.`,
	Args: cobra.NoArgs,
	RunE: runFingerprint,
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	kind := envelope.EventKind(fpEvent)
	if !kind.Known() {
		errorf(cmd, "warning: %q is not a known hook event\n", fpEvent)
	}
	fmt.Fprintln(cmd.OutOrStdout(), identity.Compute(fpSession, kind, fpTool))
	return nil
}
