package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "执行一次抓取周期后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getApp().Once(cmd.Context())
		if err != nil && out.Phase == "" {
			return err
		}
		if err != nil {
			return fmt.Errorf("cycle failed in phase %s: %w", out.Phase, err)
		}
		if out.Record != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s (%d values, strategy %s, %s)\n",
				out.Record.Timestamp, len(out.Record.Values), out.Strategy, out.Duration.Round(time.Millisecond))
		}
		return nil
	},
}
