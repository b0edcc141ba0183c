// Package cmd wires the CLI commands for the migration tool.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ixtalo/gitlab-export-import/internal/config"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "gitlab-export-import",
	Short:   "GitLab-to-GitLab migration via recursive export/import",
	Version: version,
	Long: `Recursively export GitLab groups, subgroups and their projects to archive
files on disk, and import such an export tree into another GitLab instance,
preserving the group hierarchy and namespace placement.`,
}

// ExecuteContext runs the root command with the given context, so polling
// loops stop on interrupt.
func ExecuteContext(ctx context.Context) error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server-url", "", "GitLab URL, e.g. https://gitlab.example.com")
	pf.String("private-token", "", "GitLab API private access token (scope 'api')")
	pf.Float64("delay", 15, "refresh delay in seconds for job status polling")
	pf.Float64("timeout", 0, "overall per-job wait limit in seconds (0 = wait forever)")
	pf.Bool("no-ssl-verify", false, "do not verify HTTPS/TLS certificates")
	pf.String("logfile", "", "log to FILE instead of stdout (disables color)")
	pf.Bool("no-color", false, "no colored log output")
	pf.String("report", "", "write a YAML run report to FILE")

	cobra.OnInitialize(func() {
		cobra.CheckErr(config.Bind(rootCmd.PersistentFlags()))
	})
}
