package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ixtalo/gitlab-export-import/internal/importer"
	"github.com/ixtalo/gitlab-export-import/internal/logging"
	"github.com/ixtalo/gitlab-export-import/internal/report"
)

var (
	importRoot     string
	importNoGroups bool
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Import an exported group tree into a GitLab instance",
	Long: `Import the export tree found in <directory>: the root group archive is
imported in a single call (its subgroup structure is embedded in the
archive), then every project archive is uploaded into the namespace derived
from its position in the tree. With --root the whole tree is placed under
an existing destination group. Re-running is idempotent: projects already
present at their destination path are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importRoot, "root", "", "full path of an existing destination group to import under")
	importCmd.Flags().BoolVar(&importNoGroups, "no-groups", false, "do not import groups, only projects")
}

func runImport(cmd *cobra.Command, args []string) error {
	settings, client, err := setup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	imp := importer.New(client, settings.Delay, settings.Timeout)
	result, err := imp.Run(cmd.Context(), args[0], importRoot, importNoGroups)
	if err != nil {
		return err
	}

	logging.Infof("Import done: %d group(s), %d project(s), %d skipped, %d failed.",
		result.Groups, result.Projects, result.Skipped, result.Failed)

	if settings.ReportFile != "" {
		r := report.New("import", settings.ServerURL, importRoot, args[0])
		r.Groups = result.Groups
		r.Projects = result.Projects
		r.Skipped = result.Skipped
		r.Failed = result.Failed
		r.Errors = result.Errors
		if err := r.Write(settings.ReportFile); err != nil {
			return err
		}
		logging.Infof("Run report written to %s (run %s)", settings.ReportFile, r.RunID)
	}
	return nil
}
