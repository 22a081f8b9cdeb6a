package projectsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ID is the opaque project identifier assigned by the server. The backend
// sends it as a JSON number; strings are accepted too.
type ID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric identifiers back as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseUint(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Project is one imported spreadsheet as listed by the service. Field names
// follow the backend's default JSON encoding.
type Project struct {
	ID               ID        `json:"ID"`
	Name             string    `json:"Name"`
	OriginalFilename string    `json:"OriginalFilename"`
	CreatedAt        time.Time `json:"CreatedAt"`
	UpdatedAt        time.Time `json:"UpdatedAt"`
}

// Settings is the wire form of a column mapping.
type Settings struct {
	Sheet      string `json:"sheet"`
	Column     string `json:"column"`
	DateColumn string `json:"date_column"`
	Line       int    `json:"line"`
}

// User is the account behind the current session.
type User struct {
	ID    ID     `json:"ID"`
	Email string `json:"Email"`
}

// SeriesPoint is one dated value of an analysis series.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Health summarises cash position as computed by the service.
type Health struct {
	CurrentBalance float64 `json:"current_balance"`
	BurnRate       float64 `json:"burn_rate"`
	RunwayMonths   float64 `json:"runway_months"`
	Status         string  `json:"status"`
	Message        string  `json:"message"`
	PredictedDate  string  `json:"predicted_date"`
}

// FlowSummary totals inflows and outflows.
type FlowSummary struct {
	TotalInflow  float64 `json:"total_inflow"`
	TotalOutflow float64 `json:"total_outflow"`
}

// Analysis is the computed result of GET /projects/{id}/analysis. The client
// only displays it.
type Analysis struct {
	Type          string        `json:"type"`
	Column        string        `json:"column"`
	Count         int           `json:"count"`
	Sum           float64       `json:"sum"`
	Mean          float64       `json:"mean"`
	StdDev        float64       `json:"std_dev"`
	TotalReturn   float64       `json:"total_return"`
	Series        []SeriesPoint `json:"series"`
	BalanceSeries []SeriesPoint `json:"balance_series"`
	FlowSummary   FlowSummary   `json:"flow_summary"`
	Health        Health        `json:"health"`
}

// FullAnalysis is the analysis type the dashboard requests.
const FullAnalysis = "full_analysis"

// File is a spreadsheet payload selected by the user.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type localFile struct{ path string }

// LocalFile references a file on disk. It is opened only when sent.
func LocalFile(path string) File { return localFile{path: path} }

func (f localFile) Name() string                 { return filepath.Base(f.path) }
func (f localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

type memoryFile struct {
	name string
	data []byte
}

// MemoryFile wraps an in-memory payload.
func MemoryFile(name string, data []byte) File { return memoryFile{name: name, data: data} }

func (f memoryFile) Name() string { return f.name }
func (f memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// Extensions accepted when creating a project and when replacing its file.
var (
	CreateExtensions  = []string{".xlsx", ".xls", ".csv"}
	ReplaceExtensions = []string{".xlsx", ".xls"}
)

// CheckExtension rejects file names whose extension is not in allowed.
func CheckExtension(name string, allowed []string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if slices.Contains(allowed, ext) {
		return nil
	}
	return fmt.Errorf("unsupported file type %q (expected %s)", ext, strings.Join(allowed, ", "))
}
