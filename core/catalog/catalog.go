// Package catalog decides between static and dynamic mode and keeps the current merged tree.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/tree"
)

// Modes
const (
	ModeStatic  = "static"
	ModeDynamic = "dynamic"
)

type (
	// StaticSource provides the tree bundled with the deployment.
	StaticSource interface {
		Load(ctx context.Context) (tree.Tree, error)
	}

	// DynamicSource provides the tree of a backend, when it is available.
	DynamicSource interface {
		CheckHealth(ctx context.Context) bool
		FetchTree(ctx context.Context) (tree.Tree, error)
	}

	// Snapshot is the tree served at a point in time.
	Snapshot struct {
		Tree             tree.Tree `json:"tree"`
		Mode             string    `json:"mode"`
		BackendAvailable bool      `json:"backend_available"`
		LoadedAt         time.Time `json:"loaded_at"`
	}
)

// Service loads and caches the tree snapshot.
type Service struct {
	static  StaticSource
	dynamic DynamicSource
	logger  core.Logger

	mu      sync.RWMutex
	current *Snapshot
	loadMu  sync.Mutex

	subsMu sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// NowFunc stamps snapshots.
var NowFunc = time.Now

// NewService returns a catalog over the given sources. dynamic may be nil.
func NewService(static StaticSource, dynamic DynamicSource, logger core.Logger) *Service {
	return &Service{
		static:  static,
		dynamic: dynamic,
		logger:  logger,
		subs:    make(map[int]chan Snapshot),
	}
}

// Load builds a fresh snapshot: the merged static and dynamic trees when the backend is healthy,
// the static tree alone otherwise.
func (s *Service) Load(ctx context.Context) (Snapshot, error) {
	if s.dynamic != nil && s.dynamic.CheckHealth(ctx) {
		snap, err := s.loadDynamic(ctx)
		if err == nil {
			return snap, nil
		}
		s.logger.Warn("falling back to static content", err)
	}

	static, err := s.static.Load(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "loading static content")
	}
	return Snapshot{Tree: static, Mode: ModeStatic, LoadedAt: NowFunc().UTC()}, nil
}

func (s *Service) loadDynamic(ctx context.Context) (Snapshot, error) {
	dynamic, err := s.dynamic.FetchTree(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "fetching dynamic content")
	}
	static, err := s.static.Load(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "loading static content")
	}
	return Snapshot{
		Tree:             tree.Merge(static, dynamic),
		Mode:             ModeDynamic,
		BackendAvailable: true,
		LoadedAt:         NowFunc().UTC(),
	}, nil
}

// Current returns the cached snapshot, loading it on first use.
func (s *Service) Current(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil {
		return *cur, nil
	}
	return s.Refresh(ctx)
}

// Refresh reloads the snapshot and pushes it to the subscribers.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snap, err := s.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.current = &snap
	s.mu.Unlock()

	s.publish(snap)
	return snap, nil
}

// Reload refreshes the snapshot after a content change.
// Failures are logged and the previous snapshot stays current.
func (s *Service) Reload(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("reloading content: %v", err), err)
	}
}

// Subscribe returns a channel receiving every new snapshot, and the func to stop receiving.
// Slow subscribers miss intermediate snapshots.
func (s *Service) Subscribe() (<-chan Snapshot, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Service) publish(snap Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale one, keep the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// RefreshEvery refreshes the snapshot on each tick until ctx is done.
func (s *Service) RefreshEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(fmt.Sprintf("refreshing content: %v", err), err)
			}
		}
	}
}
