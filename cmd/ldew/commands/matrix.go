package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/ldew/internal/access"
	"github.com/dyluth/ldew/internal/filter"
	"github.com/dyluth/ldew/internal/matrixfmt"
	"github.com/dyluth/ldew/internal/printer"
	"github.com/spf13/cobra"
)

var (
	matrixArm          string
	matrixOutputFormat string
	matrixTarget       string
	matrixCriteria     filter.Criteria
)

var matrixCmd = &cobra.Command{
	Use:     "matrix [RECORD]",
	GroupID: groupInspect,
	Short:   "Show which forms each record may open",
	Long: `Compute the access matrix for one record, or for every record with data.

Output Formats:
  default - Table with record, event, form, status and access
  jsonl   - Line-delimited JSON, one form per line

Exception forms are marked with '*' in the table.

Examples:
  # One record
  ldew matrix 1001

  # Every record as JSONL
  ldew matrix --output=jsonl | jq 'select(.denied)'

  # Denied visit forms only
  ldew matrix 1001 --event="week_*" --denied

  # Would opening week_1/vitals redirect?
  ldew matrix 1001 --target week_1:vitals`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMatrix,
}

func init() {
	matrixCmd.Flags().StringVar(&matrixArm, "arm", "", "Arm name (default: first arm)")
	matrixCmd.Flags().StringVarP(&matrixOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	matrixCmd.Flags().StringVar(&matrixTarget, "target", "", "Check access to EVENT:FORM for the record")

	// Row filters
	matrixCmd.Flags().StringVar(&matrixCriteria.EventGlob, "event", "", "Filter by event ID (glob pattern)")
	matrixCmd.Flags().StringVar(&matrixCriteria.FormGlob, "form", "", "Filter by form name (glob pattern)")
	matrixCmd.Flags().BoolVar(&matrixCriteria.DeniedOnly, "denied", false, "Show denied forms only")
	rootCmd.AddCommand(matrixCmd)
}

func runMatrix(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if matrixOutputFormat != "default" && matrixOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", matrixOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	if err := matrixCriteria.Validate(); err != nil {
		return printer.Error("invalid filter", err.Error(), []string{"Use shell glob syntax, e.g. --form=\"vit*\""})
	}

	var record string
	if len(args) > 0 {
		record = args[0]
	}

	var target *access.Target
	if matrixTarget != "" {
		ev, form, ok := strings.Cut(matrixTarget, ":")
		if !ok || ev == "" || form == "" || record == "" {
			return printer.Error(
				"invalid target",
				fmt.Sprintf("Cannot use target %q", matrixTarget),
				[]string{"Give a record and an EVENT:FORM pair:\n  ldew matrix 1001 --target week_1:vitals"},
			)
		}
		target = &access.Target{Event: ev, Form: form}
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	arm, err := cfg.Arm(matrixArm)
	if err != nil {
		return printer.Error("unknown arm", err.Error(), []string{"Check the arms in project.yml:\n  ldew check"})
	}

	store, err := connectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var resolver access.ConflictResolver
	if cfg.ConflictResolverEnabled() {
		resolver = store
	}
	builder := access.NewBuilder(store, resolver, access.Options{
		Exceptions:          cfg.ExceptionSet(),
		ExceptionsGateChain: cfg.ExceptionsGateChain,
	})

	// The displayed matrix is built without a target so the walk covers
	// every form; the target is then checked against the cached walk.
	rc := access.NewRequestContext("")
	m, buildErr := builder.Build(ctx, rc, access.Query{Arm: arm, Record: record})
	switch {
	case buildErr == nil:
	case errors.Is(buildErr, access.ErrSourceUnavailable):
		printer.Warning("completion data unavailable, showing the fail-safe matrix: %v\n", buildErr)
	default:
		return fmt.Errorf("failed to build access matrix: %w", buildErr)
	}

	var denied *access.DeniedError
	isDenied := false
	if target != nil {
		_, targetErr := builder.Build(ctx, rc, access.Query{Arm: arm, Record: record, Target: target})
		denied, isDenied = access.IsDenied(targetErr)
		if errors.Is(targetErr, access.ErrUnknownTarget) {
			return printer.Error("invalid target", targetErr.Error(), []string{"Pick an EVENT:FORM pair declared in the arm"})
		}
	}

	var records []string
	if record != "" {
		records = []string{record}
	}
	data, err := store.FetchCompletion(ctx, records, arm.Forms())
	if err != nil {
		return fmt.Errorf("failed to read completion: %w", err)
	}

	rows := matrixCriteria.Apply(matrixfmt.Rows(m, arm, data, cfg.ExceptionSet(), records...))
	if matrixOutputFormat == "jsonl" {
		if err := matrixfmt.FormatJSONL(printer.Out(), rows); err != nil {
			return err
		}
	} else {
		matrixfmt.FormatTable(printer.Out(), rows, cfg.ProjectID)
	}

	if target != nil {
		printer.Info("\nTarget %s/%s: %s\n", target.Event, target.Form, printer.Access(isDenied))
		if isDenied {
			printer.Info("Opening it redirects to the record home page (chain broken before '%s').\n", denied.Form)
		}
	}

	return nil
}
