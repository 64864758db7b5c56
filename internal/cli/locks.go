package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/ppiankov/hookguard/internal/config"
	"github.com/ppiankov/hookguard/internal/lockfile"
)

func init() {
	rootCmd.AddCommand(locksCmd)
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List execution guard and event log lock files",
	Long: `Lists lock files in the log directory with the pid that last took them,
whether that process is still alive, and whether the lock is held right now.

A file whose owner is dead and which is not held is a leftover from a killed
process and is harmless; the next acquirer reuses it.

On Linux the held column comes from /proc/locks and listing never touches the
locks. Elsewhere each file is locked for an instant to test it, so a hook
firing at that moment may be refused as a concurrent duplicate.`,
	Args: cobra.NoArgs,
	RunE: runLocks,
}

type lockInfo struct {
	Path  string
	Held  bool
	Owner lockfile.Owner
	Alive bool
	Err   error
}

func runLocks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	infos, err := collectLocks(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	printLocks(cmd.OutOrStdout(), infos)
	return nil
}

func collectLocks(ctx context.Context, cfg *config.Config) ([]lockInfo, error) {
	paths, err := filepath.Glob(cfg.GuardLockGlob())
	if err != nil {
		return nil, err
	}
	if matches, _ := filepath.Glob(cfg.LogLockPath()); len(matches) > 0 {
		paths = append(paths, matches...)
	}

	infos := make([]lockInfo, 0, len(paths))
	for _, p := range paths {
		info := lockInfo{Path: p}
		info.Held, info.Err = lockfile.Probe(p)
		if owner, err := lockfile.ReadOwner(p); err == nil {
			info.Owner = owner
			alive, err := process.PidExistsWithContext(ctx, int32(owner.PID))
			info.Alive = err == nil && alive
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func printLocks(w io.Writer, infos []lockInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No lock files.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCK\tHELD\tPID\tALIVE\tACQUIRED")
	for _, l := range infos {
		pid, alive, age := "-", "-", "-"
		if l.Owner.PID > 0 {
			pid = fmt.Sprint(l.Owner.PID)
			alive = yesNo(l.Alive)
			age = humanize.Time(l.Owner.Acquired)
		}
		held := yesNo(l.Held)
		if l.Err != nil {
			held = "error: " + l.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", filepath.Base(l.Path), held, pid, alive, age)
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
