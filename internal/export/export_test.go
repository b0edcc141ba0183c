package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ixtalo/gitlab-export-import/internal/metadata"
)

// fakeGateway simulates a GitLab instance holding a small group tree.
type fakeGateway struct {
	groups    map[string]*metadata.Ref  // full path -> group
	subgroups map[int64][]*metadata.Ref // group ID -> direct subgroups
	projects  map[int64][]*metadata.Ref // group ID -> direct projects
	statuses  map[int64][]string        // project ID -> export status sequence

	statusFetches map[int64]int
	downloads     map[int64]int

	failSchedule map[int64]bool
	failDownload map[int64]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		groups:        make(map[string]*metadata.Ref),
		subgroups:     make(map[int64][]*metadata.Ref),
		projects:      make(map[int64][]*metadata.Ref),
		statuses:      make(map[int64][]string),
		statusFetches: make(map[int64]int),
		downloads:     make(map[int64]int),
		failSchedule:  make(map[int64]bool),
		failDownload:  make(map[int64]bool),
	}
}

func (f *fakeGateway) GroupByPath(_ context.Context, fullPath string) (*metadata.Ref, error) {
	g, ok := f.groups[fullPath]
	if !ok {
		return nil, errors.New("group not found")
	}
	return g, nil
}

func (f *fakeGateway) ListGroupProjects(_ context.Context, groupID int64) ([]*metadata.Ref, error) {
	return f.projects[groupID], nil
}

func (f *fakeGateway) ListSubgroups(_ context.Context, groupID int64) ([]*metadata.Ref, error) {
	return f.subgroups[groupID], nil
}

func (f *fakeGateway) ScheduleGroupExport(_ context.Context, groupID int64) error {
	if f.failSchedule[groupID] {
		return errors.New("schedule refused")
	}
	return nil
}

func (f *fakeGateway) DownloadGroupExport(_ context.Context, groupID int64, w io.Writer) error {
	f.downloads[groupID]++
	_, err := fmt.Fprintf(w, "group-archive-%d", groupID)
	return err
}

func (f *fakeGateway) ScheduleProjectExport(_ context.Context, projectID int64) error {
	if f.failSchedule[projectID] {
		return errors.New("schedule refused")
	}
	return nil
}

func (f *fakeGateway) ProjectExportStatus(_ context.Context, projectID int64) (string, error) {
	seq := f.statuses[projectID]
	idx := f.statusFetches[projectID]
	f.statusFetches[projectID]++
	if idx >= len(seq) {
		return "finished", nil
	}
	return seq[idx], nil
}

func (f *fakeGateway) DownloadProjectExport(_ context.Context, projectID int64, w io.Writer) error {
	if f.failDownload[projectID] {
		return errors.New("download refused")
	}
	f.downloads[projectID]++
	_, err := fmt.Fprintf(w, "project-archive-%d", projectID)
	return err
}

// scenarioGateway builds a two-level tree: group teamA with project svc1
// and subgroup sub1 containing project svc2.
func scenarioGateway() *fakeGateway {
	gw := newFakeGateway()
	teamA := &metadata.Ref{ID: 1, Name: "Team A", Path: "teamA", FullPath: "teamA"}
	parentID := int64(1)
	sub1 := &metadata.Ref{ID: 2, ParentID: &parentID, Name: "Sub 1", Path: "sub1", FullPath: "teamA/sub1"}

	gw.groups["teamA"] = teamA
	gw.subgroups[1] = []*metadata.Ref{sub1}
	gw.projects[1] = []*metadata.Ref{{ID: 10, Name: "Service 1", Path: "svc1", FullPath: "teamA/svc1"}}
	gw.projects[2] = []*metadata.Ref{{ID: 20, Name: "Service 2", Path: "svc2", FullPath: "teamA/sub1/svc2"}}
	gw.statuses[10] = []string{"finished"}
	gw.statuses[20] = []string{"started", "started", "finished"}
	return gw
}

func TestRunScenarioTree(t *testing.T) {
	gw := scenarioGateway()
	out := t.TempDir()

	result, err := New(gw, time.Millisecond, 0).Run(context.Background(), "teamA", out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Groups != 2 || result.Projects != 2 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	for _, rel := range []string{
		"teamA/metadata.json",
		"teamA/group_teamA.tar.gz",
		"teamA/project_svc1.tar.gz",
		"teamA/project_svc1.tar.gz.json",
		"teamA/sub1/metadata.json",
		"teamA/sub1/project_svc2.tar.gz",
		"teamA/sub1/project_svc2.tar.gz.json",
	} {
		if _, err := os.Stat(filepath.Join(out, rel)); err != nil {
			t.Errorf("expected %s in export tree: %v", rel, err)
		}
	}

	// Subgroups get metadata only, never a group archive of their own.
	if _, err := os.Stat(filepath.Join(out, "teamA/sub1/group_sub1.tar.gz")); !os.IsNotExist(err) {
		t.Error("subgroup must not have its own group archive")
	}

	// Subgroup metadata records the hierarchy.
	sub, err := metadata.ReadRef(filepath.Join(out, "teamA/sub1/metadata.json"))
	if err != nil {
		t.Fatalf("ReadRef failed: %v", err)
	}
	if sub.ParentID == nil || *sub.ParentID != 1 {
		t.Errorf("expected subgroup parent_id 1, got %v", sub.ParentID)
	}
}

func TestRunPollsUntilFinished(t *testing.T) {
	gw := scenarioGateway()
	out := t.TempDir()

	if _, err := New(gw, time.Millisecond, 0).Run(context.Background(), "teamA", out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// svc2 reported "started" twice then "finished": exactly three status
	// fetches and exactly one download.
	if gw.statusFetches[20] != 3 {
		t.Errorf("expected 3 status fetches for svc2, got %d", gw.statusFetches[20])
	}
	if gw.downloads[20] != 1 {
		t.Errorf("expected 1 download for svc2, got %d", gw.downloads[20])
	}
}

func TestRunUnknownRootGroup(t *testing.T) {
	gw := newFakeGateway()

	if _, err := New(gw, time.Millisecond, 0).Run(context.Background(), "nope", t.TempDir()); err == nil {
		t.Error("expected error for unknown root group")
	}
}

func TestRunProjectFailureSkipsOnlyThatProject(t *testing.T) {
	gw := scenarioGateway()
	gw.failSchedule[10] = true
	out := t.TempDir()

	result, err := New(gw, time.Millisecond, 0).Run(context.Background(), "teamA", out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 1 || result.Projects != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 collected error, got %v", result.Errors)
	}

	if _, err := os.Stat(filepath.Join(out, "teamA/project_svc1.tar.gz")); !os.IsNotExist(err) {
		t.Error("failed project must not leave an archive")
	}
	if _, err := os.Stat(filepath.Join(out, "teamA/sub1/project_svc2.tar.gz")); err != nil {
		t.Errorf("sibling project should still be exported: %v", err)
	}
}

func TestRunFailedDownloadWritesNoSidecar(t *testing.T) {
	gw := scenarioGateway()
	gw.failDownload[20] = true
	out := t.TempDir()

	result, err := New(gw, time.Millisecond, 0).Run(context.Background(), "teamA", out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %+v", result)
	}

	// Neither a truncated archive nor a sidecar describing it may remain.
	if _, err := os.Stat(filepath.Join(out, "teamA/sub1/project_svc2.tar.gz")); !os.IsNotExist(err) {
		t.Error("failed download must not leave an archive behind")
	}
	if _, err := os.Stat(filepath.Join(out, "teamA/sub1/project_svc2.tar.gz.json")); !os.IsNotExist(err) {
		t.Error("failed download must not get a metadata sidecar")
	}
}

func TestRunEverySidecarMatchesItsArchive(t *testing.T) {
	gw := scenarioGateway()
	out := t.TempDir()

	if _, err := New(gw, time.Millisecond, 0).Run(context.Background(), "teamA", out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	err := filepath.Walk(out, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !metadata.IsProjectArchive(info.Name()) {
			return err
		}
		ref, err := metadata.ReadRef(metadata.SidecarPath(path))
		if err != nil {
			return fmt.Errorf("archive %s has no readable sidecar: %w", path, err)
		}
		if ref.Name == "" || ref.Path == "" {
			return fmt.Errorf("sidecar of %s lacks name/path", path)
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}
