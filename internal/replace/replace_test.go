package replace

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
)

type fakeService struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
	got   projectsvc.ID
}

func (f *fakeService) ReplaceFile(_ context.Context, id projectsvc.ID, _ projectsvc.File) error {
	if f.gate != nil {
		<-f.gate
	}
	f.calls.Add(1)
	f.got = id
	return f.err
}

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls.Add(1)
	return nil
}

var feb = projectsvc.MemoryFile("feb.xlsx", []byte("x"))

func TestSubmitReplace_Success(t *testing.T) {
	svc, ref, rec := &fakeService{}, &fakeRefresher{}, &notify.Recorder{}
	f := New(svc, ref, rec, nil)
	f.Open("3")

	res := f.SubmitReplace(context.Background(), "3", feb)
	require.True(t, res.IsOk())
	assert.Equal(t, projectsvc.ID("3"), svc.got)
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, 1, rec.Count(notify.KindSuccess))
	assert.False(t, f.State().Open)
}

func TestSubmitReplace_NilBus(t *testing.T) {
	ref := &fakeRefresher{}
	f := New(&fakeService{}, ref, nil, nil)
	f.Open("3")

	var res projectsvc.Result[projectsvc.ID]
	require.NotPanics(t, func() { res = f.SubmitReplace(context.Background(), "3", feb) })
	assert.True(t, res.IsOk())
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestSubmitReplace_FailureKeepsModalOpen(t *testing.T) {
	svc := &fakeService{err: &projectsvc.Error{Kind: projectsvc.KindServer, Status: 500}}
	ref, rec := &fakeRefresher{}, &notify.Recorder{}
	f := New(svc, ref, rec, nil)
	f.Open("3")

	res := f.SubmitReplace(context.Background(), "3", feb)
	assert.Equal(t, projectsvc.KindServer, res.Kind())

	st := f.State()
	assert.True(t, st.Open)
	assert.False(t, st.Loading)
	assert.Equal(t, MsgFailed, st.Err)
	assert.Zero(t, ref.calls.Load())
	assert.Empty(t, rec.All())
}

func TestSubmitReplace_RequiresFile(t *testing.T) {
	svc := &fakeService{}
	f := New(svc, &fakeRefresher{}, &notify.Recorder{}, nil)
	f.Open("3")

	res := f.SubmitReplace(context.Background(), "3", nil)
	assert.Equal(t, MsgFileRequired, res.Message())
	assert.Equal(t, MsgFileRequired, f.State().Err)

	res = f.SubmitReplace(context.Background(), "3", projectsvc.MemoryFile("data.csv", nil))
	assert.Equal(t, projectsvc.KindValidation, res.Kind())
	assert.Zero(t, svc.calls.Load())
}

func TestSubmitReplace_ClosedIsIgnored(t *testing.T) {
	svc := &fakeService{}
	f := New(svc, &fakeRefresher{}, &notify.Recorder{}, nil)
	assert.True(t, f.SubmitReplace(context.Background(), "3", feb).IsIgnored())
	assert.Zero(t, svc.calls.Load())
}

func TestSubmitReplace_LateResponseAfterClose(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{})}
	ref, rec := &fakeRefresher{}, &notify.Recorder{}
	f := New(svc, ref, rec, nil)
	f.Open("3")

	done := make(chan projectsvc.Result[projectsvc.ID], 1)
	go func() { done <- f.SubmitReplace(context.Background(), "3", feb) }()
	require.Eventually(t, func() bool { return f.State().Loading }, time.Second, time.Millisecond)

	assert.True(t, f.SubmitReplace(context.Background(), "3", feb).IsIgnored())

	f.Close()
	close(svc.gate)
	assert.True(t, (<-done).IsIgnored())
	assert.Empty(t, rec.All())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.False(t, f.State().Open)
}

func TestSubmitReplace_LateFailureAfterClose(t *testing.T) {
	svc := &fakeService{gate: make(chan struct{}), err: &projectsvc.Error{Kind: projectsvc.KindServer, Status: 500}}
	ref, rec := &fakeRefresher{}, &notify.Recorder{}
	f := New(svc, ref, rec, nil)
	f.Open("3")

	done := make(chan projectsvc.Result[projectsvc.ID], 1)
	go func() { done <- f.SubmitReplace(context.Background(), "3", feb) }()
	require.Eventually(t, func() bool { return f.State().Loading }, time.Second, time.Millisecond)

	f.Close()
	close(svc.gate)
	assert.True(t, (<-done).IsIgnored())
	assert.Empty(t, rec.All())
	assert.Zero(t, ref.calls.Load())
}

func TestFileSelection(t *testing.T) {
	f := New(&fakeService{}, &fakeRefresher{}, &notify.Recorder{}, nil)
	f.Open("1")
	f.SelectFile(feb)
	assert.Equal(t, feb, f.State().File)
	f.ClearFile()
	assert.Nil(t, f.State().File)
	f.SelectFile(projectsvc.MemoryFile("x.csv", nil))
	assert.NotEmpty(t, f.State().Err)

	f.Close()
	f.Open("1")
	assert.Empty(t, f.State().Err)
}
