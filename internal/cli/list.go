package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"cmdq/internal/client"
	"cmdq/internal/core"

	"github.com/spf13/cobra"
)

var (
	flagListRunning   bool
	flagListQueued    bool
	flagListAbandoned bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued, running and abandoned tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}

		var states []core.TaskState
		if flagListQueued {
			states = append(states, core.TaskStateQueued)
		}
		if flagListRunning {
			states = append(states, core.TaskStateRunning)
		}
		if flagListAbandoned {
			states = append(states, core.TaskStateAbandoned)
		}

		tasks, err := c.ListTasks(cmd.Context(), states...)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		printTaskTable(cmd, tasks)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&flagListRunning, "running", "r", false, "Only running tasks")
	listCmd.Flags().BoolVarP(&flagListQueued, "queued", "q", false, "Only queued tasks")
	listCmd.Flags().BoolVarP(&flagListAbandoned, "abandoned", "a", false, "Only abandoned tasks")
	rootCmd.AddCommand(listCmd)
}

func printTaskTable(cmd *cobra.Command, tasks []client.Task) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tTRIES\tLAST ATTEMPT\tDIRECTORY\tCOMMAND")
	for _, task := range tasks {
		last := "never"
		if task.LastAttempt != nil {
			last = *task.LastAttempt
		}
		command := strings.TrimSpace(task.Program + " " + strings.Join(task.Args, " "))
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			task.ID, task.State, task.Tries, last, task.Path, command)
	}
	_ = w.Flush()
}
