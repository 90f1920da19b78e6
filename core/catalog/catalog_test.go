package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core/tree"
	logsvc "github.com/trezcool/studentnotes/services/logger"
)

type fakeStatic struct {
	t   tree.Tree
	err error
}

func (s fakeStatic) Load(context.Context) (tree.Tree, error) { return s.t, s.err }

type fakeDynamic struct {
	mu      sync.Mutex
	healthy bool
	t       tree.Tree
	err     error
	fetches int32
}

func (d *fakeDynamic) CheckHealth(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy
}

func (d *fakeDynamic) FetchTree(context.Context) (tree.Tree, error) {
	atomic.AddInt32(&d.fetches, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t, d.err
}

func (d *fakeDynamic) setHealthy(ok bool) {
	d.mu.Lock()
	d.healthy = ok
	d.mu.Unlock()
}

func entry(id, title string) tree.Entry {
	return tree.Entry{ID: id, Type: tree.TypeMarkdown, Meta: tree.NewMeta(title, tree.DefaultOrder)}
}

func staticTree() tree.Tree {
	t := make(tree.Tree)
	t.Add("cse", "year1", "section-a", "networks", entry("osi", "OSI"))
	return t
}

func dynamicTree() tree.Tree {
	t := make(tree.Tree)
	t.Add("cse", "year1", "section-a", "networks", entry("42", "TCP"))
	t.Add("ece", "year1", "section-a", "signals", entry("43", "Fourier"))
	return t
}

func TestService_Load(t *testing.T) {
	ctx := context.Background()
	logger := logsvc.NewDiscardLogger()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return fixed }
	defer func() { NowFunc = time.Now }()

	tests := []struct {
		name        string
		dynamic     *fakeDynamic
		wantMode    string
		wantBackend bool
		wantDepts   []string
		wantEntries int
	}{
		{name: "no backend", wantMode: ModeStatic, wantDepts: []string{"cse"}, wantEntries: 1},
		{
			name:     "backend down",
			dynamic:  &fakeDynamic{healthy: false, t: dynamicTree()},
			wantMode: ModeStatic, wantDepts: []string{"cse"}, wantEntries: 1,
		},
		{
			name:     "backend failing",
			dynamic:  &fakeDynamic{healthy: true, err: errors.New("boom")},
			wantMode: ModeStatic, wantDepts: []string{"cse"}, wantEntries: 1,
		},
		{
			name:     "backend up",
			dynamic:  &fakeDynamic{healthy: true, t: dynamicTree()},
			wantMode: ModeDynamic, wantBackend: true, wantDepts: []string{"cse", "ece"}, wantEntries: 2,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var dyn DynamicSource
			if tt.dynamic != nil {
				dyn = tt.dynamic
			}
			svc := NewService(fakeStatic{t: staticTree()}, dyn, logger)

			snap, err := svc.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, snap.Mode)
			assert.Equal(t, tt.wantBackend, snap.BackendAvailable)
			assert.Equal(t, fixed, snap.LoadedAt)
			assert.Equal(t, tt.wantDepts, tree.SortedKeys(snap.Tree))
			assert.Len(t, snap.Tree["cse"]["year1"]["section-a"]["networks"], tt.wantEntries)
		})
	}

	t.Run("static failing", func(t *testing.T) {
		svc := NewService(fakeStatic{err: errors.New("no pages")}, nil, logger)
		_, err := svc.Load(ctx)
		assert.Error(t, err)
	})
}

func TestService_CurrentAndRefresh(t *testing.T) {
	ctx := context.Background()
	dyn := &fakeDynamic{healthy: true, t: dynamicTree()}
	svc := NewService(fakeStatic{t: staticTree()}, dyn, logsvc.NewDiscardLogger())

	snap, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeDynamic, snap.Mode)

	// cached
	_, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dyn.fetches))

	ch, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	dyn.setHealthy(false)
	snap, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, snap.Mode)

	select {
	case pushed := <-ch:
		assert.Equal(t, ModeStatic, pushed.Mode)
	case <-time.After(time.Second):
		t.Fatal("snapshot not pushed")
	}

	cur, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, cur.Mode)
}

func TestService_Reload(t *testing.T) {
	ctx := context.Background()
	st := &fakeStatic{t: staticTree()}
	dyn := &fakeDynamic{healthy: true, t: make(tree.Tree)}
	svc := NewService(st, dyn, logsvc.NewDiscardLogger())

	snap, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Tree.Count().Notes)

	dyn.mu.Lock()
	dyn.t = dynamicTree()
	dyn.mu.Unlock()
	svc.Reload(ctx)

	snap, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Tree.Count().Notes)

	t.Run("failure keeps the previous snapshot", func(t *testing.T) {
		st.err = errors.New("no pages")
		svc.Reload(ctx)

		cur, err := svc.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, snap.LoadedAt, cur.LoadedAt)
		assert.Equal(t, 3, cur.Tree.Count().Notes)
	})
}

func TestService_SubscribeKeepsLatest(t *testing.T) {
	ctx := context.Background()
	dyn := &fakeDynamic{healthy: true, t: dynamicTree()}
	svc := NewService(fakeStatic{t: staticTree()}, dyn, logsvc.NewDiscardLogger())

	ch, unsubscribe := svc.Subscribe()
	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	dyn.setHealthy(false)
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)

	// slow subscriber only sees the latest snapshot
	snap := <-ch
	assert.Equal(t, ModeStatic, snap.Mode)
	select {
	case <-ch:
		t.Fatal("stale snapshot kept")
	default:
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	_, err = svc.Refresh(ctx)
	assert.NoError(t, err)
}

func TestService_RefreshEvery(t *testing.T) {
	dyn := &fakeDynamic{healthy: true, t: dynamicTree()}
	svc := NewService(fakeStatic{t: staticTree()}, dyn, logsvc.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RefreshEvery(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&dyn.fetches) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RefreshEvery did not stop")
	}

	// no interval, no loop
	svc.RefreshEvery(context.Background(), 0)
}
