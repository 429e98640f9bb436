package cli

import (
	"fmt"
	"os"

	"cmdq/internal/client"
	"cmdq/internal/config"
	"cmdq/internal/core"
	"cmdq/internal/daemon"

	"github.com/spf13/cobra"
)

var flagHost string

var rootCmd = &cobra.Command{
	Use:   "cmdq [program] [args...]",
	Short: "Queue shell commands for asynchronous execution",
	Long: `cmdq queues a command to run asynchronously from the current directory.
The daemon executes queued commands with a bounded worker pool and retries
failures with exponential backoff.

Use "--" before the command when its arguments contain flags:

  cmdq -- yt-dlp --no-progress https://example.com/video`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve current dir: %w", err)
		}
		return submitCommand(cmd, core.CommandRequest{
			Path:    cwd,
			Program: args[0],
			Args:    args[1:],
		})
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "cmdqd address (default from CMDQ_ADDR)")
}

// connect builds a client for the configured daemon address and starts the
// daemon when it is not reachable yet.
func connect(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	host := flagHost
	if host == "" {
		host = "http://" + cfg.Server.Addr
	}
	c, err := client.New(host)
	if err != nil {
		return nil, err
	}
	if err := daemon.EnsureServer(cmd.Context(), c, cfg.StateDir); err != nil {
		return nil, fmt.Errorf("daemon unavailable: %w", err)
	}
	return c, nil
}

func submitCommand(cmd *cobra.Command, req core.CommandRequest) error {
	c, err := connect(cmd)
	if err != nil {
		return err
	}
	task, err := c.SubmitCommand(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("queue command: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s: %s\n", task.ID, req.Program)
	return nil
}
