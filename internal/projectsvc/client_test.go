package projectsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/finview/internal/config"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 5*time.Second, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestUpload(t *testing.T) {
	var gotName, gotFile, gotContent string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/projects/", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		gotName = r.FormValue("name")
		f, hdr, err := r.FormFile("project_file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotFile, gotContent = hdr.Filename, string(data)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "created",
			"project": map[string]any{"ID": 42, "Name": "Caixa 2026", "OriginalFilename": "jan.xlsx"},
		})
	}))

	p, err := c.Upload(context.Background(), "Caixa 2026", MemoryFile("jan.xlsx", []byte("payload")))
	require.NoError(t, err)
	assert.Equal(t, ID("42"), p.ID)
	assert.Equal(t, "Caixa 2026", p.Name)
	assert.Equal(t, "Caixa 2026", gotName)
	assert.Equal(t, "jan.xlsx", gotFile)
	assert.Equal(t, "payload", gotContent)
}

func TestUpload_LocalValidation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.Upload(context.Background(), "  ", MemoryFile("a.xlsx", nil))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = c.Upload(context.Background(), "name", nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, calls.Load())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"bad request with message", http.StatusBadRequest, `{"error":"Project name required"}`, KindValidation, "Project name required"},
		{"not found", http.StatusNotFound, `{"error":"record not found"}`, KindValidation, "record not found"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"User not authenticate"}`, KindAuth, "User not authenticate"},
		{"server error", http.StatusInternalServerError, `{"error":"Failed to process files"}`, KindServer, "Failed to process files"},
		{"no body", http.StatusBadGateway, ``, KindServer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			err := c.Delete(context.Background(), "7")
			require.Error(t, err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.Status)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestUnauthorizedHook(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	var fired atomic.Int32
	c.OnUnauthorized(func() { fired.Add(1) })

	_, err := c.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), fired.Load())
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second)
	require.NoError(t, err)
	_, err = c.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "try again", UserMessage(err, "try again"))
}

func TestMalformedSuccessBodyIsServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	_, err := c.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrServer)
}

func TestUpdateSettings(t *testing.T) {
	var got Settings
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/projects/42/settings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	}))

	want := Settings{Sheet: "Planilha1", Column: "B", DateColumn: "A", Line: 2}
	require.NoError(t, c.UpdateSettings(context.Background(), "42", want))
	assert.Equal(t, want, got)
}

func TestReplaceFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/projects/3/file", r.URL.Path)
		_, hdr, err := r.FormFile("project_file")
		if assert.NoError(t, err) {
			assert.Equal(t, "feb.xlsx", hdr.Filename)
		}
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.ReplaceFile(context.Background(), "3", MemoryFile("feb.xlsx", []byte("x"))))
}

func TestListProjects(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/", r.URL.Path)
		_, _ = io.WriteString(w, `{"projects":[{"ID":1,"Name":"a","UpdatedAt":"2026-01-02T03:04:05Z"},{"ID":"2","Name":"b"}]}`)
	}))
	got, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ID("1"), got[0].ID)
	assert.Equal(t, 2026, got[0].UpdatedAt.Year())
	assert.Equal(t, ID("2"), got[1].ID)
}

func TestAnalysis(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/9/analysis", r.URL.Path)
		assert.Equal(t, FullAnalysis, r.URL.Query().Get("type"))
		_, _ = io.WriteString(w, `{"type":"full_analysis","column":"B","count":2,"sum":30,
			"balance_series":[{"date":"2026-01-01T00:00:00Z","value":10},{"date":"2026-02-01T00:00:00Z","value":30}],
			"health":{"status":"healthy","runway_months":12}}`)
	}))
	a, err := c.Analysis(context.Background(), "9", "")
	require.NoError(t, err)
	assert.Equal(t, 30.0, a.Sum)
	assert.Len(t, a.BalanceSeries, 2)
	assert.Equal(t, "healthy", a.Health.Status)
}

func TestValidate_SendsSessionCookie(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("Authorization")
		if err != nil || ck.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"user":{"ID":1,"Email":"a@b.c"}}`)
	}))

	_, err := c.Validate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)

	c.SetSessionCookie("Authorization", "tok")
	u, err := c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)
}

func TestNewFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sid")
		if assert.NoError(t, err) {
			assert.Equal(t, "secret-value", ck.Value)
		}
		_, _ = io.WriteString(w, `{"user":{}}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	cfg.Session.CookieName = "sid"
	cfg.Session.Cookie = config.Secret("secret-value")

	c, err := NewFromConfig(cfg)
	require.NoError(t, err)
	_, err = c.Validate(context.Background())
	require.NoError(t, err)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("ftp://example.com", time.Second)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	status := http.StatusOK
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}), WithMetrics(m))

	require.NoError(t, c.Delete(context.Background(), "1"))
	status = http.StatusUnauthorized
	require.Error(t, c.Delete(context.Background(), "1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("delete", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("delete", "auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnauthorizedTotal))
}

func TestTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), WithTracerProvider(tp))

	_ = c.Delete(context.Background(), "5")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "projectsvc.delete", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Project name required",
		UserMessage(&Error{Kind: KindValidation, Message: "Project name required"}, "fallback"))
	assert.Equal(t, "fallback", UserMessage(&Error{Kind: KindServer, Message: "boom"}, "fallback"))
	assert.Equal(t, "fallback", UserMessage(errors.New("dial tcp"), "fallback"))
	assert.Equal(t, KindNetwork, KindOf(context.DeadlineExceeded))
}

func TestID_JSON(t *testing.T) {
	var p Project
	require.NoError(t, json.Unmarshal([]byte(`{"ID":12}`), &p))
	assert.Equal(t, ID("12"), p.ID)

	out, err := json.Marshal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "12", string(out))

	out, err = json.Marshal(ID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(out))
}

func TestCheckExtension(t *testing.T) {
	assert.NoError(t, CheckExtension("jan.XLSX", CreateExtensions))
	assert.NoError(t, CheckExtension("jan.csv", CreateExtensions))
	assert.Error(t, CheckExtension("jan.csv", ReplaceExtensions))
	err := CheckExtension("notes.txt", CreateExtensions)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), ".xlsx"))
}

func TestResult(t *testing.T) {
	ok := Ok(ID("1"))
	assert.True(t, ok.IsOk())
	assert.Equal(t, ID("1"), ok.Value())
	assert.NoError(t, ok.Err())

	failed := FailFrom[ID](&Error{Kind: KindValidation, Message: "bad line"}, "generic")
	assert.False(t, failed.IsOk())
	assert.Equal(t, KindValidation, failed.Kind())
	assert.Equal(t, "bad line", failed.Message())
	assert.ErrorIs(t, failed.Err(), ErrValidation)

	ign := Ignored[ID]()
	assert.False(t, ign.IsOk())
	assert.True(t, ign.IsIgnored())
	assert.NoError(t, ign.Err())
}
