package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/ldew/internal/printer"
	"github.com/dyluth/ldew/internal/watch"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: groupInspect,
	Short:   "Stream completion status changes",
	Long: `Stream completion status changes as they are written.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  ldew watch
  ldew watch --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format := watch.OutputFormat(watchOutputFormat)
	if format != watch.OutputFormatDefault && format != watch.OutputFormatJSON {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if format == watch.OutputFormatDefault {
		printer.Info("Watching status changes for project '%s' (Ctrl+C to stop)\n", cfg.ProjectID)
	}
	return watch.StreamStatusEvents(ctx, store, format, printer.Out())
}
