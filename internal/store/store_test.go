package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/session"
)

type fakeLister struct {
	projects []projectsvc.Project
	err      error
	calls    atomic.Int32
}

func (f *fakeLister) ListProjects(context.Context) ([]projectsvc.Project, error) {
	f.calls.Add(1)
	return f.projects, f.err
}

func projects(ids ...string) []projectsvc.Project {
	out := make([]projectsvc.Project, 0, len(ids))
	for _, id := range ids {
		out = append(out, projectsvc.Project{ID: projectsvc.ID(id), Name: "p" + id})
	}
	return out
}

type fakeState struct{ resolving, authenticated bool }

func (f fakeState) IsResolving() bool     { return f.resolving }
func (f fakeState) IsAuthenticated() bool { return f.authenticated }

func TestRefresh_ReplacesList(t *testing.T) {
	l := &fakeLister{projects: projects("1", "2")}
	s := New(l, &notify.Recorder{})

	require.NoError(t, s.Refresh(context.Background()))
	assert.True(t, s.Loaded())
	assert.Len(t, s.Projects(), 2)

	l.projects = projects("3")
	require.NoError(t, s.Refresh(context.Background()))
	got := s.Projects()
	require.Len(t, got, 1)
	assert.Equal(t, projectsvc.ID("3"), got[0].ID)
}

func TestRefresh_FailureKeepsListAndNotifies(t *testing.T) {
	l := &fakeLister{projects: projects("1", "2")}
	rec := &notify.Recorder{}
	s := New(l, rec)
	require.NoError(t, s.Refresh(context.Background()))

	l.err = &projectsvc.Error{Kind: projectsvc.KindNetwork, Err: errors.New("dial")}
	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, projectsvc.ErrNetwork)
	assert.Len(t, s.Projects(), 2)
	assert.Equal(t, 1, rec.Count(notify.KindError))
}

func TestRefresh_AuthFailureIsNotNotified(t *testing.T) {
	l := &fakeLister{err: &projectsvc.Error{Kind: projectsvc.KindAuth, Status: 401}}
	rec := &notify.Recorder{}
	s := New(l, rec)

	assert.ErrorIs(t, s.Refresh(context.Background()), projectsvc.ErrAuth)
	assert.Empty(t, rec.All())
}

func TestRefresh_WaitsForSession(t *testing.T) {
	l := &fakeLister{projects: projects("1")}
	s := New(l, &notify.Recorder{}, WithGate(fakeState{resolving: true}))
	assert.ErrorIs(t, s.Refresh(context.Background()), session.ErrResolving)

	s = New(l, &notify.Recorder{}, WithGate(fakeState{}))
	assert.ErrorIs(t, s.Refresh(context.Background()), session.ErrUnauthenticated)
	assert.Zero(t, l.calls.Load())

	s = New(l, &notify.Recorder{}, WithGate(fakeState{authenticated: true}))
	assert.NoError(t, s.Refresh(context.Background()))
}

func TestRemoveLocal(t *testing.T) {
	s := New(&fakeLister{projects: projects("1", "2", "3")}, &notify.Recorder{})
	require.NoError(t, s.Refresh(context.Background()))

	assert.True(t, s.RemoveLocal("2"))
	assert.False(t, s.RemoveLocal("2"))

	got := s.Projects()
	require.Len(t, got, 2)
	assert.Equal(t, projectsvc.ID("1"), got[0].ID)
	assert.Equal(t, projectsvc.ID("3"), got[1].ID)
	_, ok := s.Get("2")
	assert.False(t, ok)
}

func TestProjects_ReturnsCopy(t *testing.T) {
	s := New(&fakeLister{projects: projects("1")}, &notify.Recorder{})
	require.NoError(t, s.Refresh(context.Background()))

	got := s.Projects()
	got[0].Name = "mutated"
	p, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "p1", p.Name)
}

func TestCurrent(t *testing.T) {
	s := New(&fakeLister{projects: projects("1", "2")}, &notify.Recorder{})
	_, ok := s.Current()
	assert.False(t, ok)

	require.NoError(t, s.Refresh(context.Background()))
	p, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, projectsvc.ID("2"), p.ID)
}

func TestSubscribe(t *testing.T) {
	s := New(&fakeLister{projects: projects("1")}, &notify.Recorder{})
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	require.NoError(t, s.Refresh(context.Background()))
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no change ping after refresh")
	}

	s.RemoveLocal("1")
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no change ping after remove")
	}
}
