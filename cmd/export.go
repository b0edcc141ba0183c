package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ixtalo/gitlab-export-import/internal/config"
	"github.com/ixtalo/gitlab-export-import/internal/export"
	"github.com/ixtalo/gitlab-export-import/internal/gitlab"
	"github.com/ixtalo/gitlab-export-import/internal/logging"
	"github.com/ixtalo/gitlab-export-import/internal/report"
)

var exportRoot string

var exportCmd = &cobra.Command{
	Use:   "export <directory>",
	Short: "Export a GitLab group tree to a directory",
	Long: `Export the group at --root and, recursively, all of its projects and
subgroups into <directory>. The root group is exported as a tar.gz archive;
every project gets its own archive plus a JSON metadata sidecar, organized
in a directory tree mirroring the group hierarchy.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportRoot, "root", "", "full path of the GitLab group to export (required)")
	_ = exportCmd.MarkFlagRequired("root")
}

func runExport(cmd *cobra.Command, args []string) error {
	settings, client, err := setup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	exporter := export.New(client, settings.Delay, settings.Timeout)
	result, err := exporter.Run(cmd.Context(), exportRoot, args[0])
	if err != nil {
		return err
	}

	logging.Infof("Export done: %d group(s), %d project(s), %d failed.",
		result.Groups, result.Projects, result.Failed)

	if settings.ReportFile != "" {
		r := report.New("export", settings.ServerURL, exportRoot, args[0])
		r.Groups = result.Groups
		r.Projects = result.Projects
		r.Failed = result.Failed
		r.Errors = result.Errors
		if err := r.Write(settings.ReportFile); err != nil {
			return err
		}
		logging.Infof("Run report written to %s (run %s)", settings.ReportFile, r.RunID)
	}
	return nil
}

// setup resolves configuration, initializes logging and returns an
// authenticated client. Shared by the export and import commands; dir is
// the user-supplied target directory and must already exist.
func setup(ctx context.Context, dir string) (*config.Settings, *gitlab.Client, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Setup(logging.Options{
		LogFile: settings.LogFile,
		NoColor: settings.NoColor,
	}); err != nil {
		return nil, nil, err
	}

	fi, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("no such directory: %s", dir)
		}
		return nil, nil, err
	}
	if !fi.IsDir() {
		return nil, nil, errors.New("not a directory: " + dir)
	}

	if settings.NoSSLVerify {
		logging.Warnf("TLS certificate verification is disabled.")
	}

	client, err := gitlab.New(settings.ServerURL, settings.PrivateToken, settings.NoSSLVerify)
	if err != nil {
		return nil, nil, err
	}

	version, err := client.Version(ctx)
	if err != nil {
		return nil, nil, err
	}
	logging.Infof("GitLab version: %s", version)
	if err := client.CheckAuth(ctx); err != nil {
		return nil, nil, err
	}

	return settings, client, nil
}
