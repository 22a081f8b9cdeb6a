package devserver

import (
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxUpload bounds accepted spreadsheets.
const maxUpload = 10 << 20

// project mirrors the backend's row; JSON names follow its default encoding.
type project struct {
	ID               uint      `json:"ID"`
	CreatedAt        time.Time `json:"CreatedAt"`
	UpdatedAt        time.Time `json:"UpdatedAt"`
	Name             string    `json:"Name"`
	OriginalFilename string    `json:"OriginalFilename"`
	ConfigSheet      string    `json:"ConfigSheet"`
	ConfigColumn     string    `json:"ConfigColumn"`
	ConfigDateColumn string    `json:"ConfigDateColumn"`
	ConfigLine       int       `json:"ConfigLine"`

	data   []byte
	mapped bool
}

func (p *project) configured() bool {
	return p.ConfigSheet != "" && p.ConfigColumn != "" && p.ConfigLine > 0
}

type settingsRequest struct {
	Sheet      string `json:"sheet"`
	Column     string `json:"column"`
	DateColumn string `json:"date_column"`
	Line       int    `json:"line"`
}

func (s *Server) handleUpload(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Project name required")
	}
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	p := &project{
		ID:               s.nextID,
		CreatedAt:        now,
		UpdatedAt:        now,
		Name:             name,
		OriginalFilename: filename,
		ConfigLine:       1,
		ConfigColumn:     "A",
		data:             data,
	}
	s.projects[p.ID] = p
	s.nextID++
	out := *p
	s.mu.Unlock()

	s.logger.Debug(c.Request().Context(), "project created",
		zap.Uint("id", out.ID), zap.String("file", filename), zap.Int("bytes", len(data)))
	return c.JSON(http.StatusOK, map[string]any{"message": "Project created", "project": out})
}

func (s *Server) handleList(c echo.Context) error {
	s.mu.Lock()
	out := make([]project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b project) int { return int(a.ID) - int(b.ID) })
	return c.JSON(http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) handleSettings(c echo.Context) error {
	id, err := projectID(c)
	if err != nil {
		return err
	}
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Sheet == "" || req.Column == "" || req.Line == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sheet, column and line are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found or access denied")
	}
	p.ConfigSheet = req.Sheet
	p.ConfigColumn = req.Column
	p.ConfigDateColumn = req.DateColumn
	p.ConfigLine = req.Line
	p.mapped = true
	p.UpdatedAt = s.now()
	return c.JSON(http.StatusOK, map[string]any{"message": "Configuration saved successfully", "project": *p})
}

func (s *Server) handleReplaceFile(c echo.Context) error {
	id, err := projectID(c)
	if err != nil {
		return err
	}
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found or access denied")
	}
	p.OriginalFilename = filename
	p.data = data
	p.UpdatedAt = s.now()
	return c.JSON(http.StatusOK, map[string]any{"message": "File updated", "project": *p})
}

func (s *Server) handleAnalysis(c echo.Context) error {
	id, err := projectID(c)
	if err != nil {
		return err
	}
	kind := c.QueryParam("type")
	if kind == "" {
		kind = "full_analysis"
	}

	s.mu.Lock()
	p, ok := s.projects[id]
	var snapshot project
	if ok {
		snapshot = *p
	}
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Project not found or access denied")
	}
	if !snapshot.configured() {
		return echo.NewHTTPError(http.StatusInternalServerError, "Project not configured. Please select sheet, column, and row")
	}

	result, err := analyze(snapshot, kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := projectID(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Project not found or access denied")
	}
	delete(s.projects, id)
	return c.JSON(http.StatusOK, map[string]any{"message": "Project deleted"})
}

func projectID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid project ID")
	}
	return uint(id), nil
}

func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("project_file")
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "File not found")
	}
	if fh.Size > maxUpload {
		return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "File not found")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read file")
	}
	return filepath.Base(fh.Filename), data, nil
}

// Projects returns the stored project ids in creation order, for tests.
func (s *Server) Projects() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Mapped reports whether settings were saved for project id, for tests.
func (s *Server) Mapped(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return ok && p.mapped
}
