package projectsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	projectsPath = "/projects/"
	validatePath = "/validate"

	formName = "name"
	formFile = "project_file"
)

// Upload creates a project from name and file. The project is unconfigured
// until UpdateSettings succeeds for its id.
func (c *Client) Upload(ctx context.Context, name string, file File) (Project, error) {
	const op = "upload"
	if strings.TrimSpace(name) == "" {
		return Project{}, NewValidationError(op, "project name is required")
	}
	if file == nil {
		return Project{}, NewValidationError(op, "a file is required")
	}
	body, contentType, err := multipartBody(map[string]string{formName: name}, file)
	if err != nil {
		return Project{}, &Error{Kind: KindValidation, Op: op, Message: err.Error(), Err: err}
	}
	var out struct {
		Message string  `json:"message"`
		Project Project `json:"project"`
	}
	err = c.do(ctx, request{op: op, method: http.MethodPost, path: projectsPath,
		body: body, contentType: contentType}, &out)
	if err != nil {
		return Project{}, err
	}
	if out.Project.ID == "" {
		return Project{}, &Error{Kind: KindServer, Op: op, Message: "response carried no project id"}
	}
	return out.Project, nil
}

// UpdateSettings stores the column mapping of project id.
func (c *Client) UpdateSettings(ctx context.Context, id ID, s Settings) error {
	const op = "update_settings"
	if id == "" {
		return NewValidationError(op, "project id is required")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return c.do(ctx, request{op: op, method: http.MethodPut, path: projectPath(id, "settings"),
		body: bytes.NewReader(payload), contentType: "application/json", projectID: id}, nil)
}

// ReplaceFile uploads a new spreadsheet for an existing project. The mapping
// is kept server side.
func (c *Client) ReplaceFile(ctx context.Context, id ID, file File) error {
	const op = "replace_file"
	if id == "" {
		return NewValidationError(op, "project id is required")
	}
	if file == nil {
		return NewValidationError(op, "a file is required")
	}
	body, contentType, err := multipartBody(nil, file)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Message: err.Error(), Err: err}
	}
	return c.do(ctx, request{op: op, method: http.MethodPut, path: projectPath(id, "file"),
		body: body, contentType: contentType, projectID: id}, nil)
}

// ListProjects returns every project of the session's user in server order.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, request{op: "list", method: http.MethodGet, path: projectsPath}, &out); err != nil {
		return nil, err
	}
	if out.Projects == nil {
		out.Projects = []Project{}
	}
	return out.Projects, nil
}

// Analysis fetches the computed analysis of a project. An empty kind means
// FullAnalysis.
func (c *Client) Analysis(ctx context.Context, id ID, kind string) (Analysis, error) {
	const op = "analysis"
	if id == "" {
		return Analysis{}, NewValidationError(op, "project id is required")
	}
	if kind == "" {
		kind = FullAnalysis
	}
	var out Analysis
	err := c.do(ctx, request{op: op, method: http.MethodGet, path: projectPath(id, "analysis"),
		query: url.Values{"type": {kind}}, projectID: id}, &out)
	return out, err
}

// Delete destroys a project.
func (c *Client) Delete(ctx context.Context, id ID) error {
	const op = "delete"
	if id == "" {
		return NewValidationError(op, "project id is required")
	}
	return c.do(ctx, request{op: op, method: http.MethodDelete, path: projectPath(id, ""), projectID: id}, nil)
}

// Validate checks the session cookie and returns the signed-in user.
func (c *Client) Validate(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.do(ctx, request{op: "validate", method: http.MethodGet, path: validatePath}, &out)
	return out.User, err
}

func projectPath(id ID, sub string) string {
	p := "/projects/" + url.PathEscape(id.String())
	if sub != "" {
		p += "/" + sub
	}
	return p
}

// multipartBody encodes fields and file as multipart/form-data.
func multipartBody(fields map[string]string, file File) (io.Reader, string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", file.Name(), err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(formFile, file.Name())
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", file.Name(), err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
