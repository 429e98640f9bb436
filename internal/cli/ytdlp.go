package cli

import (
	"fmt"
	"os"

	"cmdq/internal/core"

	"github.com/spf13/cobra"
)

var flagYtdlpPrefix string

var ytdlpCmd = &cobra.Command{
	Use:   "ytdlp <url>",
	Short: "Queue a yt-dlp download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve current dir: %w", err)
		}
		url := args[0]
		dlArgs := []string{url}
		if flagYtdlpPrefix != "" {
			dlArgs = []string{"-o", fmt.Sprintf("%s %%(title)s [%%(id)s].%%(ext)s", flagYtdlpPrefix), url}
		}
		return submitCommand(cmd, core.CommandRequest{
			Path:    cwd,
			Program: "yt-dlp",
			Args:    dlArgs,
		})
	},
}

func init() {
	ytdlpCmd.Flags().StringVarP(&flagYtdlpPrefix, "prefix", "p", "", "Optional prefix for the downloaded filename")
	rootCmd.AddCommand(ytdlpCmd)
}
