// Package importer recreates a previously exported GitLab group tree on a
// destination instance: one group-import call for the root archive, then one
// project-import request per project archive found in the tree.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ixtalo/gitlab-export-import/internal/gitlab"
	"github.com/ixtalo/gitlab-export-import/internal/logging"
	"github.com/ixtalo/gitlab-export-import/internal/metadata"
	"github.com/ixtalo/gitlab-export-import/internal/poll"
)

// Gateway is the slice of the remote API the importer needs.
type Gateway interface {
	GroupByPath(ctx context.Context, fullPath string) (*metadata.Ref, error)
	ProjectByPath(ctx context.Context, pathWithNamespace string) (*metadata.Ref, error)
	ImportGroupArchive(ctx context.Context, archivePath, name, slug string, parentID *int64) error
	ImportProjectArchive(ctx context.Context, archive io.Reader, name, slug, namespace string) (int64, error)
	ProjectImportStatus(ctx context.Context, projectID int64) (status, pathWithNamespace string, err error)
}

// Result accumulates the outcome of one import run.
type Result struct {
	Groups   int
	Projects int
	Skipped  int
	Failed   int
	Errors   []string
}

func (r *Result) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logging.Errorf("%s", msg)
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

// Importer imports one export tree per Run call.
type Importer struct {
	gw     Gateway
	waiter poll.Waiter
}

// New creates an Importer polling import job status at the given interval.
func New(gw Gateway, delay time.Duration, timeout time.Duration) *Importer {
	return &Importer{
		gw: gw,
		waiter: poll.Waiter{
			Interval: delay,
			Timeout:  timeout,
		},
	}
}

// Run imports the export tree in dir. destRoot, when non-empty, is the full
// path of an existing destination group the tree is placed under. noGroups
// skips the group phase (projects only, into already existing groups).
// A group-phase failure aborts the whole run; project failures are collected
// and siblings continue.
func (i *Importer) Run(ctx context.Context, dir, destRoot string, noGroups bool) (*Result, error) {
	if err := metadata.CheckExportDir(dir); err != nil {
		return nil, err
	}

	result := &Result{}
	if !noGroups {
		if err := i.importGroups(ctx, dir, destRoot, result); err != nil {
			return nil, err
		}
	}
	if err := i.importProjects(ctx, dir, destRoot, result); err != nil {
		return nil, err
	}
	return result, nil
}

// importGroups issues the single root group-import call. The uploaded
// archive carries the full subgroup structure; subdirectories of the export
// tree are never imported individually.
func (i *Importer) importGroups(ctx context.Context, dir, destRoot string, result *Result) error {
	root, err := metadata.ReadRef(metadata.GroupMetadataPath(dir))
	if err != nil {
		return err
	}

	var parentID *int64
	if destRoot != "" {
		parent, err := i.gw.GroupByPath(ctx, destRoot)
		if err != nil {
			if errors.Is(err, gitlab.ErrNotFound) {
				return fmt.Errorf("destination root group %q does not exist (for this access token): %w", destRoot, err)
			}
			return err
		}
		parentID = &parent.ID
		logging.Infof("Parent group found: %s (%d, %q)", destRoot, parent.ID, parent.Name)
	}

	archivePath, err := metadata.FindGroupArchive(dir)
	if err != nil {
		return err
	}

	if parentID != nil {
		logging.Infof("Importing group %q with path %q as subgroup of parent_id=%d ...", root.Name, root.Path, *parentID)
	} else {
		logging.Infof("Importing group %q with path %q ...", root.Name, root.Path)
	}
	logging.Infof("Loading from file %q ...", archivePath)

	if err := i.gw.ImportGroupArchive(ctx, archivePath, root.Name, root.Path, parentID); err != nil {
		return err
	}
	result.Groups++

	logging.Infof("Group import of %q done.", root.Name)
	return nil
}

// importProjects walks the export tree and imports every project archive
// into the namespace derived from its directory.
func (i *Importer) importProjects(ctx context.Context, dir, destRoot string, result *Result) error {
	root, err := metadata.ReadRef(metadata.GroupMetadataPath(dir))
	if err != nil {
		return err
	}

	logging.Debugf("Scanning for project export archives in %q ...", dir)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return ctx.Err()
		}

		name := d.Name()
		if metadata.IsSidecar(name) || metadata.IsGroupArchive(name) {
			return nil
		}
		if !metadata.IsProjectArchive(name) {
			logging.Warnf("Skipping non-project archive: %s", name)
			return nil
		}

		namespace, err := Namespace(dir, filepath.Dir(path), root.Path, destRoot)
		if err != nil {
			return err
		}
		i.importProjectFile(ctx, path, namespace, result)
		return ctx.Err()
	})
}

// Namespace computes the destination namespace for project archives in
// archiveDir: destRoot/rootSlug/<relative-subpath>, separators normalized
// to forward slashes regardless of host filesystem convention.
func Namespace(exportDir, archiveDir, rootSlug, destRoot string) (string, error) {
	rel, err := filepath.Rel(exportDir, archiveDir)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", archiveDir, err)
	}

	namespace := rootSlug
	if rel != "." {
		namespace += "/" + filepath.ToSlash(rel)
	}
	if destRoot != "" {
		namespace = destRoot + "/" + namespace
	}
	return namespace, nil
}

// importProjectFile imports one project archive. All failures are recorded
// on the result; the walk over the remaining archives continues.
func (i *Importer) importProjectFile(ctx context.Context, archivePath, namespace string, result *Result) {
	ref, err := metadata.ReadRef(metadata.SidecarPath(archivePath))
	if err != nil {
		result.fail("Problem reading metadata for %q: %v", archivePath, err)
		return
	}

	pathWithNamespace := namespace + "/" + ref.Path
	logging.Debugf("project path with namespace: %s", pathWithNamespace)

	// Idempotent re-run: a project already present at the destination path
	// is skipped, not duplicated.
	if _, err := i.gw.ProjectByPath(ctx, pathWithNamespace); err == nil {
		logging.Warnf("Skipping already existing project: %s", pathWithNamespace)
		result.Skipped++
		return
	} else if !errors.Is(err, gitlab.ErrNotFound) {
		result.fail("Problem checking for existing project %q: %v", pathWithNamespace, err)
		return
	}

	if fi, err := os.Stat(archivePath); err == nil {
		logging.Infof("Importing project %q (%.1f MB) to %q ...", ref.Name, float64(fi.Size())/1024.0/1024.0, pathWithNamespace)
	} else {
		logging.Infof("Importing project %q to %q ...", ref.Name, pathWithNamespace)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		result.fail("Problem opening archive %q: %v", archivePath, err)
		return
	}
	importID, err := i.gw.ImportProjectArchive(ctx, f, ref.Name, ref.Path, namespace)
	f.Close()
	if err != nil {
		result.fail("Problem importing project %q: %v", pathWithNamespace, err)
		return
	}
	logging.Infof("Upload done. Remote import job is now in progress (id:%d)", importID)

	var importedPath string
	err = i.waiter.Await(ctx, func(ctx context.Context) (bool, error) {
		status, p, err := i.gw.ProjectImportStatus(ctx, importID)
		if err != nil {
			return false, err
		}
		logging.Debugf("import status of %q: %s", pathWithNamespace, status)
		importedPath = p
		return status == gitlab.StatusFinished, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		result.fail("Problem waiting for import of %q: %v", pathWithNamespace, err)
		return
	}

	logging.Infof("Import finished of %q", importedPath)
	result.Projects++
}
