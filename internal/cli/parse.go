package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"netflow-crawler/internal/app"
	"netflow-crawler/internal/cadence"
)

var (
	parseAt     string
	parseHeader bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [row text]",
	Short: "Parse raw row text into a CSV row without touching any store",
	Long:  "Parse raw row text into a CSV row. Reads stdin when no argument is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
		if text == "" {
			return errors.New("row text is required")
		}

		opts := app.ParseOptions{Text: text, Header: parseHeader}
		if parseAt != "" {
			at, err := time.ParseInLocation(cadence.TimestampLayout, parseAt, time.Local)
			if err != nil {
				return fmt.Errorf("--at must look like %q: %w", cadence.TimestampLayout, err)
			}
			opts.CapturedAt = at
		}

		return getApp().Parse(cmd.OutOrStdout(), opts)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseAt, "at", "", "Capture time, e.g. \"14 Mar 2025, 09:47\" (default now)")
	parseCmd.Flags().BoolVar(&parseHeader, "header", false, "Print the CSV header first")
}
