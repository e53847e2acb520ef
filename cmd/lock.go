package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/paths"
	"github.com/quarrylabs/skillstore/internal/presentation"
	"github.com/quarrylabs/skillstore/internal/store/lock"
)

// lockCoordinator talks to the lock file directly. Opening the full store
// would itself take the lock for recovery, which defeats inspecting it.
func lockCoordinator() *lock.Coordinator {
	root := rootFlag
	if root == "" {
		root = cfg.Root
	}
	return lock.NewCoordinator(paths.ResolveRoot(root))
}

var lockStatusCmd = &cobra.Command{
	Use:   "lock:status",
	Short: "Show the global lock holder",
	Long: `Show the current global write lock holder as JSON, or null when the lock
is unheld. The stale field reports whether the holder's process is gone.

Examples:
  skillstore lock:status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, err := lockCoordinator().Status()
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromHolder(holder))
	},
}

var lockBreakForce bool

var lockBreakCmd = &cobra.Command{
	Use:   "lock:break",
	Short: "Forcibly remove the global lock",
	Long: `Forcibly remove the global write lock file.

Refuses to break a lock whose holder is still alive unless --force is
given. Breaking a live holder's lock can corrupt an in-flight write; use
it only when the holder is confirmed gone.

Examples:
  skillstore lock:break
  skillstore lock:break --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := lockCoordinator()
		holder, err := c.Status()
		if err != nil {
			return err
		}
		if holder == nil {
			return formatter().Format(map[string]any{"broken": false, "holder": nil})
		}
		if !holder.Stale() && !lockBreakForce {
			return fmt.Errorf("lock held by live process %d on %s; use --force to break anyway",
				holder.PID, holder.Hostname)
		}

		removed, err := c.Break()
		if err != nil {
			return err
		}
		return formatter().Format(map[string]any{
			"broken": removed != nil,
			"holder": presentation.FromHolder(removed),
		})
	},
}

func init() {
	lockBreakCmd.Flags().BoolVar(&lockBreakForce, "force", false, "break even if the holder is alive")
	rootCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(lockBreakCmd)
}
