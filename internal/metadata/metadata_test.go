package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNamingConventions(t *testing.T) {
	tests := []struct {
		name    string
		project bool
		group   bool
		sidecar bool
	}{
		{"project_svc1.tar.gz", true, false, false},
		{"group_teamA.tar.gz", false, true, false},
		{"project_svc1.tar.gz.json", false, false, true},
		{"metadata.json", false, false, true},
		{"README.md", false, false, false},
		{"project_svc1.zip", false, false, false},
		{"backup.tar.gz", false, false, false},
	}

	for _, tt := range tests {
		if got := IsProjectArchive(tt.name); got != tt.project {
			t.Errorf("IsProjectArchive(%q) = %v, want %v", tt.name, got, tt.project)
		}
		if got := IsGroupArchive(tt.name); got != tt.group {
			t.Errorf("IsGroupArchive(%q) = %v, want %v", tt.name, got, tt.group)
		}
		if got := IsSidecar(tt.name); got != tt.sidecar {
			t.Errorf("IsSidecar(%q) = %v, want %v", tt.name, got, tt.sidecar)
		}
	}
}

func TestArchivePaths(t *testing.T) {
	dir := filepath.Join("out", "teamA")

	if got, want := GroupArchivePath(dir, "teamA"), filepath.Join(dir, "group_teamA.tar.gz"); got != want {
		t.Errorf("GroupArchivePath = %q, want %q", got, want)
	}
	if got, want := ProjectArchivePath(dir, "svc1"), filepath.Join(dir, "project_svc1.tar.gz"); got != want {
		t.Errorf("ProjectArchivePath = %q, want %q", got, want)
	}
	if got, want := SidecarPath(ProjectArchivePath(dir, "svc1")), filepath.Join(dir, "project_svc1.tar.gz.json"); got != want {
		t.Errorf("SidecarPath = %q, want %q", got, want)
	}
	if got, want := GroupMetadataPath(dir), filepath.Join(dir, "metadata.json"); got != want {
		t.Errorf("GroupMetadataPath = %q, want %q", got, want)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := GroupMetadataPath(dir)

	parentID := int64(42)
	created := time.Date(2022, 10, 21, 12, 0, 0, 0, time.UTC)
	ref := &Ref{
		ID:        7,
		ParentID:  &parentID,
		CreatedAt: &created,
		Name:      "Team A",
		FullName:  "Root / Team A",
		Path:      "teamA",
		FullPath:  "root/teamA",
	}

	if err := WriteRef(path, ref); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	got, err := ReadRef(path)
	if err != nil {
		t.Fatalf("ReadRef failed: %v", err)
	}
	if got.ID != 7 || got.Name != "Team A" || got.Path != "teamA" || got.FullPath != "root/teamA" {
		t.Errorf("unexpected ref: %+v", got)
	}
	if got.ParentID == nil || *got.ParentID != 42 {
		t.Errorf("expected parent_id 42, got %v", got.ParentID)
	}
	if got.CreatedAt == nil || !got.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, got.CreatedAt)
	}
}

func TestWriteRefNilParent(t *testing.T) {
	dir := t.TempDir()
	path := GroupMetadataPath(dir)

	if err := WriteRef(path, &Ref{ID: 1, Name: "Top", Path: "top"}); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	// A top-level group must not serialize a parent_id at all.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if strings.Contains(string(data), `"parent_id"`) {
		t.Errorf("expected no parent_id field, got: %s", data)
	}

	got, err := ReadRef(path)
	if err != nil {
		t.Fatalf("ReadRef failed: %v", err)
	}
	if got.ParentID != nil {
		t.Errorf("expected nil parent_id, got %v", *got.ParentID)
	}
}

func TestWriteRefRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	if err := WriteRef(GroupMetadataPath(dir), &Ref{ID: 1, Name: "x"}); err == nil {
		t.Error("expected error for ref without path")
	}
	if err := WriteRef(GroupMetadataPath(dir), &Ref{ID: 1, Path: "x"}); err == nil {
		t.Error("expected error for ref without name")
	}
}

func TestCheckExportDir(t *testing.T) {
	dir := t.TempDir()

	err := CheckExportDir(dir)
	if !errors.Is(err, ErrNotExportDir) {
		t.Fatalf("expected ErrNotExportDir, got %v", err)
	}

	if err := WriteRef(GroupMetadataPath(dir), &Ref{ID: 1, Name: "Top", Path: "top"}); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}
	if err := CheckExportDir(dir); err != nil {
		t.Errorf("expected valid export dir, got %v", err)
	}
}

func TestFindGroupArchive(t *testing.T) {
	dir := t.TempDir()

	if _, err := FindGroupArchive(dir); err == nil {
		t.Error("expected error for directory without group archive")
	}

	for _, name := range []string{"group_zzz.tar.gz", "group_aaa.tar.gz", "project_p.tar.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindGroupArchive(dir)
	if err != nil {
		t.Fatalf("FindGroupArchive failed: %v", err)
	}
	if want := filepath.Join(dir, "group_aaa.tar.gz"); got != want {
		t.Errorf("FindGroupArchive = %q, want %q", got, want)
	}
}
