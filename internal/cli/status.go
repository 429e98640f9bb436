package cli

import (
	"fmt"

	"cmdq/internal/core"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon reachability and queue counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		for _, state := range []core.TaskState{core.TaskStateQueued, core.TaskStateRunning, core.TaskStateAbandoned} {
			tasks, err := c.ListTasks(cmd.Context(), state)
			if err != nil {
				return fmt.Errorf("list %s tasks: %w", state, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\t%d\n", state, len(tasks))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
