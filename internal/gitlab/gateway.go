// Package gitlab is a thin façade over the GitLab REST client, exposing the
// handful of lookup, export-job and import-job operations the migration
// needs. Protocol concerns (auth, TLS, pagination, uploads) stay inside the
// client library.
package gitlab

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/ixtalo/gitlab-export-import/internal/metadata"
)

// StatusFinished is the terminal state of GitLab export and import jobs.
const StatusFinished = "finished"

// ErrNotFound indicates a group or project that does not exist (or is not
// visible to the access token). Callers decide whether that is fatal.
var ErrNotFound = errors.New("not found")

// Client wraps an authenticated connection to one GitLab instance. A single
// Client is reused for every call within a run.
type Client struct {
	gl *gogitlab.Client
}

// New creates a Client for the given instance. With insecureSkipVerify the
// HTTP transport accepts any TLS certificate.
func New(serverURL, privateToken string, insecureSkipVerify bool) (*Client, error) {
	opts := []gogitlab.ClientOptionFunc{
		gogitlab.WithBaseURL(serverURL + "/api/v4"),
	}
	if insecureSkipVerify {
		opts = append(opts, gogitlab.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}))
	}

	gl, err := gogitlab.NewClient(privateToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &Client{gl: gl}, nil
}

// Version returns the remote instance version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, _, err := c.gl.Version.GetVersion(gogitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get GitLab version: %w", err)
	}
	return v.Version, nil
}

// CheckAuth verifies the token by fetching the authenticated user.
func (c *Client) CheckAuth(ctx context.Context) error {
	if _, _, err := c.gl.Users.CurrentUser(gogitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return nil
}

// GroupByPath looks up a group by its full path. Returns ErrNotFound for
// missing groups instead of a transport error.
func (c *Client) GroupByPath(ctx context.Context, fullPath string) (*metadata.Ref, error) {
	group, resp, err := c.gl.Groups.GetGroup(fullPath, &gogitlab.GetGroupOptions{
		WithProjects: gogitlab.Ptr(false),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("group %q: %w", fullPath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group %q: %w", fullPath, err)
	}
	return groupRef(group), nil
}

// ProjectByPath looks up a project by its path with namespace. Returns
// ErrNotFound for missing projects.
func (c *Client) ProjectByPath(ctx context.Context, pathWithNamespace string) (*metadata.Ref, error) {
	project, resp, err := c.gl.Projects.GetProject(pathWithNamespace, nil, gogitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("project %q: %w", pathWithNamespace, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project %q: %w", pathWithNamespace, err)
	}
	return projectRef(project), nil
}

// ListGroupProjects lists the direct (non-recursive) projects of a group,
// across all pages.
func (c *Client) ListGroupProjects(ctx context.Context, groupID int64) ([]*metadata.Ref, error) {
	opts := &gogitlab.ListGroupProjectsOptions{
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}

	var refs []*metadata.Ref
	for {
		projects, resp, err := c.gl.Groups.ListGroupProjects(groupID, opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list projects of group %d: %w", groupID, err)
		}
		for _, p := range projects {
			refs = append(refs, projectRef(p))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return refs, nil
}

// ListSubgroups lists the direct subgroups of a group, across all pages.
func (c *Client) ListSubgroups(ctx context.Context, groupID int64) ([]*metadata.Ref, error) {
	opts := &gogitlab.ListSubGroupsOptions{
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}

	var refs []*metadata.Ref
	for {
		groups, resp, err := c.gl.Groups.ListSubGroups(groupID, opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list subgroups of group %d: %w", groupID, err)
		}
		for _, g := range groups {
			refs = append(refs, groupRef(g))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return refs, nil
}

// ScheduleGroupExport creates a group export job.
func (c *Client) ScheduleGroupExport(ctx context.Context, groupID int64) error {
	if _, err := c.gl.GroupImportExport.ScheduleExport(groupID, gogitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to schedule export of group %d: %w", groupID, err)
	}
	return nil
}

// DownloadGroupExport streams the finished group export archive into w.
func (c *Client) DownloadGroupExport(ctx context.Context, groupID int64, w io.Writer) error {
	reader, _, err := c.gl.GroupImportExport.ExportDownload(groupID, gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to download export of group %d: %w", groupID, err)
	}
	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("failed to write group export archive: %w", err)
	}
	return nil
}

// ScheduleProjectExport creates a project export job.
func (c *Client) ScheduleProjectExport(ctx context.Context, projectID int64) error {
	if _, err := c.gl.ProjectImportExport.ScheduleExport(projectID, nil, gogitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to schedule export of project %d: %w", projectID, err)
	}
	return nil
}

// ProjectExportStatus refreshes and returns the export job status of a
// project ("none", "queued", "started", "finished", ...).
func (c *Client) ProjectExportStatus(ctx context.Context, projectID int64) (string, error) {
	status, _, err := c.gl.ProjectImportExport.ExportStatus(projectID, gogitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get export status of project %d: %w", projectID, err)
	}
	return status.ExportStatus, nil
}

// DownloadProjectExport streams the finished project export archive into w.
func (c *Client) DownloadProjectExport(ctx context.Context, projectID int64, w io.Writer) error {
	data, _, err := c.gl.ProjectImportExport.ExportDownload(projectID, gogitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to download export of project %d: %w", projectID, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write project export archive: %w", err)
	}
	return nil
}

// ImportGroupArchive uploads a group export archive as a new group with the
// given slug and name, under parentID if non-nil. The remote import job
// recreates the embedded subgroup structure on its own.
func (c *Client) ImportGroupArchive(ctx context.Context, archivePath, name, slug string, parentID *int64) error {
	opts := &gogitlab.GroupImportFileOptions{
		Name: gogitlab.Ptr(name),
		Path: gogitlab.Ptr(slug),
		File: gogitlab.Ptr(archivePath),
	}
	if parentID != nil {
		opts.ParentID = gogitlab.Ptr(*parentID)
	}

	if _, err := c.gl.GroupImportExport.ImportFile(opts, gogitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to import group %q: %w", slug, err)
	}
	return nil
}

// ImportProjectArchive uploads a project export archive as a new project
// import request and returns the remote import job's project ID.
func (c *Client) ImportProjectArchive(ctx context.Context, archive io.Reader, name, slug, namespace string) (int64, error) {
	status, _, err := c.gl.ProjectImportExport.ImportFromFile(archive, &gogitlab.ImportFileOptions{
		Name:      gogitlab.Ptr(name),
		Path:      gogitlab.Ptr(slug),
		Namespace: gogitlab.Ptr(namespace),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to import project %q: %w", namespace+"/"+slug, err)
	}
	return status.ID, nil
}

// ProjectImportStatus refreshes and returns the import job status and the
// imported path for a project import.
func (c *Client) ProjectImportStatus(ctx context.Context, projectID int64) (status, pathWithNamespace string, err error) {
	st, _, err := c.gl.ProjectImportExport.ImportStatus(projectID, gogitlab.WithContext(ctx))
	if err != nil {
		return "", "", fmt.Errorf("failed to get import status of project %d: %w", projectID, err)
	}
	return st.ImportStatus, st.PathWithNamespace, nil
}

func groupRef(g *gogitlab.Group) *metadata.Ref {
	ref := &metadata.Ref{
		ID:        g.ID,
		CreatedAt: g.CreatedAt,
		Name:      g.Name,
		FullName:  g.FullName,
		Path:      g.Path,
		FullPath:  g.FullPath,
	}
	if g.ParentID != 0 {
		parentID := g.ParentID
		ref.ParentID = &parentID
	}
	return ref
}

func projectRef(p *gogitlab.Project) *metadata.Ref {
	return &metadata.Ref{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		Name:      p.Name,
		FullName:  p.NameWithNamespace,
		Path:      p.Path,
		FullPath:  p.PathWithNamespace,
	}
}
