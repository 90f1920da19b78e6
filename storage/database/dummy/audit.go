package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(_ context.Context, e audit.Entry, _ ...core.DBExecutor) (audit.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = repo.db.nextPK()
	repo.db.audit = append(repo.db.audit, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(
	_ context.Context,
	filter audit.QueryFilter,
	p core.Paginate,
	_ ...core.DBExecutor,
) ([]audit.Entry, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]audit.Entry, 0)
	for _, e := range repo.db.audit {
		switch {
		case filter.ActorID != 0 && e.ActorID != filter.ActorID,
			filter.Action != "" && e.Action != filter.Action,
			filter.TargetType != "" && e.TargetType != filter.TargetType,
			filter.TargetID != 0 && e.TargetID != filter.TargetID,
			!filter.From.IsZero() && e.Timestamp.Before(filter.From),
			!filter.To.IsZero() && e.Timestamp.After(filter.To):
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return page(entries, p), len(entries), nil
}

func (repo *auditRepository) CountEntriesSince(_ context.Context, since time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, e := range repo.db.audit {
		if !e.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}
