package dummydb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/deletion"
)

type deletionRepository struct {
	db *DB
}

var _ deletion.Repository = (*deletionRepository)(nil) // interface compliance check

func NewDeletionRepository(db *DB) deletion.Repository {
	return &deletionRepository{db: db}
}

// withInfo fills the note and user columns the way the SQL joins do. Callers hold the lock.
func (repo *deletionRepository) withInfo(r deletion.Request) deletion.Request {
	if n, ok := repo.db.notes[r.NoteID]; ok {
		r.Note = deletion.NoteInfo{
			PublicID:   n.PublicID,
			Title:      n.Title,
			Department: n.Department,
			Year:       n.Year,
			Section:    n.Section,
			Subject:    n.Subject,
			Status:     n.Status,
		}
	}
	if t, ok := repo.db.users[r.TeacherID]; ok {
		r.RequestedBy = deletion.UserInfo{PublicID: t.PublicID, Name: t.Name, Email: t.Email}
	}
	r.ResolvedByName = null.String{}
	if r.ResolvedByID.Valid {
		if a, ok := repo.db.users[r.ResolvedByID.Int]; ok {
			r.ResolvedByName = null.StringFrom(a.Name)
		}
	}
	return r
}

func (repo *deletionRepository) CreateRequest(_ context.Context, r deletion.Request, _ ...core.DBExecutor) (deletion.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r.ID = repo.db.nextPK()
	stored := r
	repo.db.deletions[r.ID] = &stored
	return r, nil
}

func (repo *deletionRepository) GetRequestByPublicID(_ context.Context, publicID string, _ ...core.DBExecutor) (deletion.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.deletions {
		if r.PublicID == publicID {
			return repo.withInfo(*r), nil
		}
	}
	return deletion.Request{}, deletion.ErrNotFound
}

func (repo *deletionRepository) HasPendingRequest(_ context.Context, noteID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.deletions {
		if r.NoteID == noteID && r.Status == deletion.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (repo *deletionRepository) ResolveRequest(_ context.Context, r deletion.Request, _ ...core.DBExecutor) (deletion.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.deletions[r.ID]
	if !ok {
		return deletion.Request{}, deletion.ErrNotFound
	}
	if orig.Status != deletion.StatusPending {
		return deletion.Request{}, deletion.ErrConcurrentResolution
	}
	orig.Status = r.Status
	orig.ResolvedByID = r.ResolvedByID
	orig.ResolvedAt = r.ResolvedAt
	orig.RejectionReason = r.RejectionReason
	orig.ResolutionKey = r.ResolutionKey
	return repo.withInfo(*orig), nil
}

func (repo *deletionRepository) QueryRequests(
	_ context.Context,
	filter deletion.QueryFilter,
	p core.Paginate,
	_ ...core.DBExecutor,
) ([]deletion.Request, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reqs := make([]deletion.Request, 0)
	for _, r := range repo.db.deletions {
		switch {
		case filter.Status != "" && r.Status != filter.Status,
			filter.TeacherID != 0 && r.TeacherID != filter.TeacherID,
			!filter.From.IsZero() && r.RequestedAt.Before(filter.From),
			!filter.To.IsZero() && r.RequestedAt.After(filter.To):
			continue
		}
		reqs = append(reqs, repo.withInfo(*r))
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].RequestedAt.Equal(reqs[j].RequestedAt) {
			return reqs[i].ID > reqs[j].ID
		}
		return reqs[i].RequestedAt.After(reqs[j].RequestedAt)
	})
	return page(reqs, p), len(reqs), nil
}

func (repo *deletionRepository) CountRequests(_ context.Context, status string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, r := range repo.db.deletions {
		if r.Status == status {
			count++
		}
	}
	return count, nil
}
