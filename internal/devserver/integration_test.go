package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/finview/internal/deletion"
	"github.com/fyrsmithlabs/finview/internal/devserver"
	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/replace"
	"github.com/fyrsmithlabs/finview/internal/session"
	"github.com/fyrsmithlabs/finview/internal/store"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

type harness struct {
	srv    *devserver.Server
	client *projectsvc.Client
	gate   *session.Gate
	nav    *session.RecordingNavigator
	store  *store.Store
	rec    *notify.Recorder
	log    *logging.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.NewTestLogger()
	srv, err := devserver.NewServer(log.Logger, &devserver.Config{Token: "tok"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := projectsvc.New(ts.URL, 5*time.Second, projectsvc.WithLogger(log.Logger))
	require.NoError(t, err)
	client.SetSessionCookie("Authorization", "tok")

	nav := &session.RecordingNavigator{}
	gate := session.NewGate(client, nav, log.Logger)
	client.OnUnauthorized(gate.Expire)
	require.NoError(t, gate.Resolve(context.Background()))

	rec := &notify.Recorder{}
	st := store.New(client, rec, store.WithGate(gate), store.WithLogger(log.Logger))
	return &harness{srv: srv, client: client, gate: gate, nav: nav, store: st, rec: rec, log: log}
}

var jan = projectsvc.MemoryFile("jan.xlsx", []byte("not parsed until analysis"))

func TestCreateProjectEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Refresh(ctx))
	assert.Empty(t, h.store.Projects())

	w := wizard.NewController(h.client, h.store, h.rec, h.log.Logger)
	w.Open()
	up := w.SubmitUpload(ctx, "Caixa 2026", jan)
	require.True(t, up.IsOk(), up.Message())
	id := up.Value()

	st, ok := w.State().(wizard.ConfiguringMapping)
	require.True(t, ok)
	assert.Equal(t, id, st.ProjectID)

	done := w.SubmitMapping(ctx, wizard.MappingDraft{Sheet: "Planilha1", Column: "B", DateColumn: "A", StartRow: "2"})
	require.True(t, done.IsOk(), done.Message())

	assert.Equal(t, wizard.Idle{}, w.State())
	p, ok := h.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Caixa 2026", p.Name)
	assert.Equal(t, 1, h.rec.Count(notify.KindSuccess))
	assert.Len(t, h.rec.All(), 1)
	assert.True(t, h.srv.Mapped(1))
}

func TestMappingFailureLeavesOrphanAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := wizard.NewController(h.client, h.store, h.rec, h.log.Logger)
	w.Open()
	require.True(t, w.SubmitUpload(ctx, "Caixa", jan).IsOk())

	h.srv.FailNext("PUT /projects/:id/settings", http.StatusInternalServerError, "db down")
	res := w.SubmitMapping(ctx, wizard.MappingDraft{Sheet: "Planilha1", Column: "B", StartRow: "2"})
	assert.Equal(t, projectsvc.KindServer, res.Kind())
	assert.Equal(t, wizard.MsgMappingFailed, w.State().(wizard.ConfiguringMapping).Err)
	assert.Equal(t, []uint{1}, h.srv.Projects())
	assert.False(t, h.srv.Mapped(1))

	require.True(t, w.SubmitMapping(ctx, wizard.MappingDraft{Sheet: "Planilha1", Column: "B", StartRow: "2"}).IsOk())
	assert.Equal(t, []uint{1}, h.srv.Projects(), "retry must not upload again")
	assert.True(t, h.srv.Mapped(1))
}

func TestServerValidationMessageShownVerbatim(t *testing.T) {
	h := newHarness(t)
	h.srv.FailNext("POST /projects/", http.StatusBadRequest, "Project name required")

	w := wizard.NewController(h.client, h.store, h.rec, h.log.Logger)
	w.Open()
	res := w.SubmitUpload(context.Background(), "Caixa", jan)
	assert.Equal(t, "Project name required", res.Message())
	assert.Equal(t, "Project name required", w.State().(wizard.CollectingFile).Err)
}

func TestReplaceAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.client.Upload(ctx, "Caixa", jan)
	require.NoError(t, err)
	require.NoError(t, h.store.Refresh(ctx))

	rf := replace.New(h.client, h.store, h.rec, h.log.Logger)
	rf.Open(created.ID)
	require.True(t, rf.SubmitReplace(ctx, created.ID, projectsvc.MemoryFile("feb.xlsx", []byte("x"))).IsOk())
	p, ok := h.store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "feb.xlsx", p.OriginalFilename)

	df := deletion.New(h.client, h.store, h.rec, h.log.Logger)
	require.NoError(t, df.RequestDelete(p))
	require.True(t, df.ConfirmDelete(ctx).IsOk())
	assert.Empty(t, h.store.Projects())
	assert.Empty(t, h.srv.Projects())
	assert.Equal(t, 2, h.rec.Count(notify.KindSuccess))
}

func TestUnauthorizedRedirectsFromAnyFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.True(t, h.gate.IsAuthenticated())

	h.srv.FailNext("GET /projects/", http.StatusUnauthorized, "token expired")
	err := h.store.Refresh(ctx)
	assert.ErrorIs(t, err, projectsvc.ErrAuth)

	assert.False(t, h.gate.IsAuthenticated())
	assert.Equal(t, []string{session.LoginRoute}, h.nav.Routes())
	assert.Empty(t, h.rec.All(), "auth failures are not flow notifications")

	// The store no longer fetches while unauthenticated.
	assert.ErrorIs(t, h.store.Refresh(ctx), session.ErrUnauthenticated)
}
