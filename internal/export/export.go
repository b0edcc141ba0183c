// Package export walks a remote GitLab group tree top-down and mirrors it
// into a local directory tree of export archives and metadata sidecars.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ixtalo/gitlab-export-import/internal/gitlab"
	"github.com/ixtalo/gitlab-export-import/internal/logging"
	"github.com/ixtalo/gitlab-export-import/internal/metadata"
	"github.com/ixtalo/gitlab-export-import/internal/poll"
)

// Gateway is the slice of the remote API the exporter needs.
type Gateway interface {
	GroupByPath(ctx context.Context, fullPath string) (*metadata.Ref, error)
	ListGroupProjects(ctx context.Context, groupID int64) ([]*metadata.Ref, error)
	ListSubgroups(ctx context.Context, groupID int64) ([]*metadata.Ref, error)
	ScheduleGroupExport(ctx context.Context, groupID int64) error
	DownloadGroupExport(ctx context.Context, groupID int64, w io.Writer) error
	ScheduleProjectExport(ctx context.Context, projectID int64) error
	ProjectExportStatus(ctx context.Context, projectID int64) (string, error)
	DownloadProjectExport(ctx context.Context, projectID int64, w io.Writer) error
}

// Result accumulates the outcome of one export run.
type Result struct {
	Groups   int
	Projects int
	Failed   int
	Errors   []string
}

func (r *Result) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logging.Errorf("%s", msg)
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

// Exporter exports one group tree per Run call. Execution is fully
// sequential; one export job runs to completion before the next begins.
type Exporter struct {
	gw     Gateway
	delay  time.Duration
	waiter poll.Waiter
}

// New creates an Exporter. delay is both the one-shot wait before the group
// archive download and the project status poll interval.
func New(gw Gateway, delay time.Duration, timeout time.Duration) *Exporter {
	return &Exporter{
		gw:    gw,
		delay: delay,
		waiter: poll.Waiter{
			Interval: delay,
			Timeout:  timeout,
		},
	}
}

// Run exports the group tree rooted at rootPath into outDir. The tree lands
// in outDir/<root-group-slug>/. Per-project failures are collected in the
// Result; only root-group level problems abort the run.
func (e *Exporter) Run(ctx context.Context, rootPath, outDir string) (*Result, error) {
	result := &Result{}

	group, err := e.gw.GroupByPath(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	groupDir := filepath.Join(outDir, group.Path)
	if err := e.exportRootGroup(ctx, group, groupDir); err != nil {
		return nil, err
	}
	result.Groups++

	if err := e.exportProjects(ctx, group, groupDir, result); err != nil {
		return nil, err
	}
	if err := e.exportSubgroups(ctx, group, groupDir, result); err != nil {
		return nil, err
	}
	return result, nil
}

// exportRootGroup schedules the group export job, waits one delay (group
// exports are metadata-only and fast, so there is no status endpoint worth
// polling), then downloads the archive and writes the group metadata.
func (e *Exporter) exportRootGroup(ctx context.Context, group *metadata.Ref, groupDir string) error {
	logging.Infof("Creating group export for %q (path %q)...", group.Name, group.Path)
	if err := e.gw.ScheduleGroupExport(ctx, group.ID); err != nil {
		return err
	}

	logging.Debugf("waiting %s for the group export to complete...", e.delay)
	if err := sleep(ctx, e.delay); err != nil {
		return err
	}

	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", groupDir, err)
	}

	archivePath := metadata.GroupArchivePath(groupDir, group.Path)
	logging.Infof("Downloading group export to %s ...", archivePath)
	if err := downloadToFile(archivePath, func(w io.Writer) error {
		return e.gw.DownloadGroupExport(ctx, group.ID, w)
	}); err != nil {
		return err
	}

	if err := metadata.WriteRef(metadata.GroupMetadataPath(groupDir), group); err != nil {
		return err
	}

	logging.Infof("Group export finished for %q", group.Path)
	return nil
}

// exportProjects exports every direct project of group into dir. A failing
// project is logged and skipped; its siblings still run.
func (e *Exporter) exportProjects(ctx context.Context, group *metadata.Ref, dir string, result *Result) error {
	projects, err := e.gw.ListGroupProjects(ctx, group.ID)
	if err != nil {
		return err
	}
	logging.Infof("%d project(s) in %q", len(projects), group.FullPath)

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.exportProject(ctx, project, dir, result) {
			result.Projects++
		}
	}
	return nil
}

// exportProject exports one project archive plus its metadata sidecar.
// Returns true on success. The sidecar is written only after a confirmed
// successful download, so a sidecar never describes a missing archive.
func (e *Exporter) exportProject(ctx context.Context, project *metadata.Ref, dir string, result *Result) bool {
	logging.Infof("Project export for %q (%d, %q)...", project.FullPath, project.ID, project.Name)

	if err := e.gw.ScheduleProjectExport(ctx, project.ID); err != nil {
		result.fail("Problem creating export for %q: %v", project.Path, err)
		return false
	}

	err := e.waiter.Await(ctx, func(ctx context.Context) (bool, error) {
		status, err := e.gw.ProjectExportStatus(ctx, project.ID)
		if err != nil {
			return false, err
		}
		logging.Debugf("export status of %q: %s", project.Path, status)
		return status == gitlab.StatusFinished, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		result.fail("Problem getting export status for %q: %v", project.Path, err)
		return false
	}

	archivePath := metadata.ProjectArchivePath(dir, project.Path)
	logging.Infof("Downloading export for %q: %s", project.Path, archivePath)
	if err := downloadToFile(archivePath, func(w io.Writer) error {
		return e.gw.DownloadProjectExport(ctx, project.ID, w)
	}); err != nil {
		result.fail("Problem downloading export for %q: %v", project.Path, err)
		return false
	}
	logging.Infof("Download finished for %q", project.Path)

	if err := metadata.WriteRef(metadata.SidecarPath(archivePath), project); err != nil {
		result.fail("Problem writing metadata for %q: %v", project.Path, err)
		return false
	}
	return true
}

// exportSubgroups recurses into every direct subgroup of group, creating its
// subdirectory and metadata file. Subgroups get no export job of their own:
// the root group archive already embeds the whole subgroup structure, the
// directories here only carry metadata for namespace reconstruction.
func (e *Exporter) exportSubgroups(ctx context.Context, group *metadata.Ref, dir string, result *Result) error {
	subgroups, err := e.gw.ListSubgroups(ctx, group.ID)
	if err != nil {
		return err
	}

	for _, subgroup := range subgroups {
		subDir := filepath.Join(dir, subgroup.Path)
		if err := os.MkdirAll(subDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", subDir, err)
		}
		if err := metadata.WriteRef(metadata.GroupMetadataPath(subDir), subgroup); err != nil {
			return err
		}
		result.Groups++

		if err := e.exportProjects(ctx, subgroup, subDir, result); err != nil {
			return err
		}
		if err := e.exportSubgroups(ctx, subgroup, subDir, result); err != nil {
			return err
		}
	}
	return nil
}

// downloadToFile writes a download into path, removing the file again if
// the download fails partway.
func downloadToFile(path string, download func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := download(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
