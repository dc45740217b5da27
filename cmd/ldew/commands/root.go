package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

const (
	groupHost    = "host"
	groupInspect = "inspect"
)

var rootCmd = &cobra.Command{
	Use:   "ldew",
	Short: "Linear data entry workflow for longitudinal studies",
	Long: `ldew keeps data entry in order: a form opens only after every earlier
form of the record is complete. Exception forms stay open regardless.

Run "ldew serve" next to the host so its page-top, data entry and save
render points get links disabled, buttons decided, fields pre-filled and
forms locked. "ldew matrix", "ldew status" and "ldew watch" read and write
the same Redis data for support and testing.

Configuration comes from --config (or $LDEW_CONFIG), either YAML or TOML.
Completion data lives in Redis at --redis-url (or $REDIS_URL).`,
	Version:       version,
	SilenceErrors: true, // printer formats errors
	SilenceUsage:  true,
	// Without a subcommand, show help instead of succeeding silently.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo stamps the build metadata shown by --version.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupHost, Title: "Host integration:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection and data:"},
	)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Project file, .yml or .toml (default $LDEW_CONFIG, then ./project.yml)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (default $REDIS_URL, then redis://localhost:6379)")
}
