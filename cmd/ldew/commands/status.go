package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/ldew/internal/config"
	"github.com/dyluth/ldew/internal/printer"
	"github.com/dyluth/ldew/internal/watch"
	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/spf13/cobra"
)

var (
	statusInstance int
	statusWaitFor  string
	statusTimeout  time.Duration
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: groupInspect,
	Short:   "Write or wait for form completion statuses",
}

var statusSetCmd = &cobra.Command{
	Use:   "set RECORD EVENT FORM STATUS",
	Short: "Set the completion status of a form",
	Long: `Set the completion status of a form and publish a status event.

STATUS is 0/1/2 or incomplete/unverified/complete.
Use --instance for repeating forms.

Examples:
  ldew status set 1001 baseline consent complete
  ldew status set 1001 week_1 adverse_events 2 --instance 3`,
	Args: cobra.ExactArgs(4),
	RunE: runStatusSet,
}

var statusWaitCmd = &cobra.Command{
	Use:   "wait RECORD EVENT FORM",
	Short: "Block until a form reaches a status",
	Long: `Poll until a form reaches the given status (default: complete).

Example:
  ldew status wait 1001 baseline consent --timeout 2m`,
	Args: cobra.ExactArgs(3),
	RunE: runStatusWait,
}

func init() {
	statusSetCmd.Flags().IntVar(&statusInstance, "instance", 0, "Repeat instance (>= 1) for repeating forms")
	statusWaitCmd.Flags().StringVar(&statusWaitFor, "status", "complete", "Status to wait for")
	statusWaitCmd.Flags().DurationVar(&statusTimeout, "timeout", 30*time.Second, "How long to wait")

	statusCmd.AddCommand(statusSetCmd, statusWaitCmd)
	rootCmd.AddCommand(statusCmd)
}

// requireDeclared checks that (event, form) exists in some arm.
func requireDeclared(cfg *config.ProjectConfig, eventID, form string) error {
	for _, a := range cfg.Arms {
		arm, err := cfg.Arm(a.Name)
		if err != nil {
			return err
		}
		if arm.HasForm(eventID, form) {
			return nil
		}
	}
	return printer.ErrorWithContext(
		"unknown form",
		"The form is not assigned to the event in any arm.",
		map[string]string{"Event": eventID, "Form": form},
		[]string{"List the declared arms:\n  ldew check"},
	)
}

func runStatusSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	record, eventID, form := args[0], args[1], args[2]

	status, err := clinical.ParseStatus(args[3])
	if err != nil {
		return printer.Error("invalid status", err.Error(), nil)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDeclared(cfg, eventID, form); err != nil {
		return err
	}

	store, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if statusInstance > 0 {
		err = store.SetInstanceStatus(ctx, record, eventID, form, statusInstance, status)
	} else {
		err = store.SetStatus(ctx, record, eventID, form, status)
	}
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}

	printer.Success("%s/%s for record %s is now %s\n", eventID, form, record, status)
	return nil
}

func runStatusWait(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	record, eventID, form := args[0], args[1], args[2]

	want, err := clinical.ParseStatus(statusWaitFor)
	if err != nil {
		return printer.Error("invalid status", err.Error(), nil)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDeclared(cfg, eventID, form); err != nil {
		return err
	}

	store, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	printer.Step("Waiting for %s/%s of record %s to become %s...\n", eventID, form, record, want)
	if err := watch.PollForStatus(ctx, store, record, eventID, form, want, statusTimeout); err != nil {
		return printer.Error("status not reached", err.Error(), nil)
	}

	printer.Success("%s/%s for record %s is %s\n", eventID, form, record, want)
	return nil
}
