package commands

import (
	"strings"

	"github.com/dyluth/ldew/internal/printer"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: groupHost,
	Short:   "Validate project.yml",
	Long: `Validate project.yml and print a summary of the workflow it declares.

Examples:
  ldew check
  ldew check --config studies/pid-42.yml`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	printer.Success("%s is valid (project %s)\n", path, cfg.ProjectID)

	for _, a := range cfg.Arms {
		arm, err := cfg.Arm(a.Name)
		if err != nil {
			return err
		}
		printer.Info("  arm %s: %d events, %d forms\n", arm.Name, len(arm.Events), len(arm.Forms()))
	}

	if len(cfg.Exceptions) > 0 {
		printer.Info("  exceptions: %s\n", strings.Join(cfg.ExceptionSet().Sorted(), ", "))
	}
	if cfg.ExceptionsGateChain {
		printer.Info("  exception forms gate the chain\n")
	}
	if cfg.FDECEnabled() {
		printer.Info("  required-field enforcement: on\n")
	}
	if len(cfg.RolesToLock) > 0 {
		printer.Info("  lock on save for roles: %s\n", strings.Join(cfg.RolesToLock, ", "))
	}
	if len(cfg.CopyValues) > 0 {
		printer.Info("  value copy on %d form(s)\n", len(cfg.CopyValues))
	}
	if cfg.ConflictResolverEnabled() {
		printer.Info("  conflict resolver denials: merged\n")
	}
	if cfg.BaseURL == "" {
		printer.Warning("base_url is empty; redirects will be host-relative\n")
	}

	return nil
}
