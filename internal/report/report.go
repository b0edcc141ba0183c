// Package report records the outcome of a migration run as a YAML file.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Report summarizes one export or import run.
type Report struct {
	RunID      string    `yaml:"run_id"`
	Mode       string    `yaml:"mode"` // "export" or "import"
	ServerURL  string    `yaml:"server_url"`
	Root       string    `yaml:"root,omitempty"`
	Directory  string    `yaml:"directory"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`

	Groups   int      `yaml:"groups"`
	Projects int      `yaml:"projects"`
	Skipped  int      `yaml:"skipped"`
	Failed   int      `yaml:"failed"`
	Errors   []string `yaml:"errors,omitempty"`
}

// New starts a report for a run. FinishedAt is set by Write.
func New(mode, serverURL, root, directory string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		ServerURL: serverURL,
		Root:      root,
		Directory: directory,
		StartedAt: time.Now().UTC(),
	}
}

// Write persists the report to path atomically (temp file + rename).
func (r *Report) Write(path string) error {
	r.FinishedAt = time.Now().UTC()

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".report-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

// Read loads a previously written report.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
