// Package metadata reads and writes the JSON sidecar files that identify
// exported GitLab groups and projects, and owns the on-disk naming
// conventions of an export tree.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// Filename is the per-directory group metadata file name.
	Filename = "metadata.json"

	groupArchivePrefix   = "group_"
	projectArchivePrefix = "project_"
	archiveSuffix        = ".tar.gz"
	sidecarSuffix        = ".json"
)

// ErrNotExportDir indicates a directory that lacks a group metadata file and
// therefore cannot be imported.
var ErrNotExportDir = errors.New("directory is not an export folder (no " + Filename + ")")

// Ref is a snapshot of a remote group's or project's identity at export
// time. It is written once per exported entity and read back during import
// to recover name and slug. ParentID is nil for top-level groups and for
// projects (the remote API reports no parent_id attribute for projects).
type Ref struct {
	ID        int64      `json:"id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Name      string     `json:"name"`
	FullName  string     `json:"full_name,omitempty"`
	Path      string     `json:"path"`
	FullPath  string     `json:"full_path,omitempty"`
}

// GroupMetadataPath returns the group metadata file path for a directory.
func GroupMetadataPath(dir string) string {
	return filepath.Join(dir, Filename)
}

// GroupArchivePath returns the group archive path for a group slug.
func GroupArchivePath(dir, slug string) string {
	return filepath.Join(dir, groupArchivePrefix+slug+archiveSuffix)
}

// ProjectArchivePath returns the project archive path for a project slug.
func ProjectArchivePath(dir, slug string) string {
	return filepath.Join(dir, projectArchivePrefix+slug+archiveSuffix)
}

// SidecarPath returns the metadata sidecar path for a project archive.
func SidecarPath(archivePath string) string {
	return archivePath + sidecarSuffix
}

// IsProjectArchive reports whether a file name follows the project archive
// naming convention.
func IsProjectArchive(name string) bool {
	return strings.HasPrefix(name, projectArchivePrefix) && strings.HasSuffix(name, archiveSuffix)
}

// IsGroupArchive reports whether a file name follows the group archive
// naming convention.
func IsGroupArchive(name string) bool {
	return strings.HasPrefix(name, groupArchivePrefix) && strings.HasSuffix(name, archiveSuffix)
}

// IsSidecar reports whether a file name is a JSON metadata file.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, sidecarSuffix)
}

// WriteRef writes a metadata file atomically via a temp file in the target
// directory, so a crashed run never leaves a truncated sidecar behind.
func WriteRef(path string, ref *Ref) error {
	if ref.Name == "" || ref.Path == "" {
		return fmt.Errorf("metadata for %s is incomplete: name and path are required", path)
	}

	data, err := json.MarshalIndent(ref, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

// ReadRef reads a metadata file.
func ReadRef(path string) (*Ref, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}

	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	if ref.Name == "" || ref.Path == "" {
		return nil, fmt.Errorf("metadata file %s is incomplete: name and path are required", path)
	}
	return &ref, nil
}

// CheckExportDir verifies that dir contains a group metadata file. It is
// called before any remote work so a wrong directory fails fast.
func CheckExportDir(dir string) error {
	if _, err := os.Stat(GroupMetadataPath(dir)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotExportDir, dir)
		}
		return fmt.Errorf("failed to stat %s: %w", GroupMetadataPath(dir), err)
	}
	return nil
}

// FindGroupArchive returns the first group archive in dir, by name order.
func FindGroupArchive(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, groupArchivePrefix+"*"+archiveSuffix))
	if err != nil {
		return "", fmt.Errorf("failed to scan for group archive: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no group archive (%s*%s) in %s", groupArchivePrefix, archiveSuffix, dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
