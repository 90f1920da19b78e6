package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
)

const auditColumns = `id, correlation_id, actor_id, actor_email, actor_role, action, target_type, target_id,
	description, previous_state, new_state, ip_address, user_agent, timestamp`

type auditRepository struct {
	repo
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) *auditRepository {
	return &auditRepository{repo{exec: exec}}
}

func (r auditRepository) CreateEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	id, err := insert(ctx, r.getExec(exec), `INSERT INTO audit_logs
		(correlation_id, actor_id, actor_email, actor_role, action, target_type, target_id,
		 description, previous_state, new_state, ip_address, user_agent, timestamp)
		VALUES (:correlation_id, :actor_id, :actor_email, :actor_role, :action, :target_type, :target_id,
		 :description, :previous_state, :new_state, :ip_address, :user_agent, :timestamp)`, e)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	e.ID = id
	return e, nil
}

func (r auditRepository) QueryEntries(
	ctx context.Context,
	filter audit.QueryFilter,
	page core.Paginate,
	exec ...core.DBExecutor,
) ([]audit.Entry, int, error) {
	ex := r.getExec(exec)

	w := where{}
	if filter.ActorID != 0 {
		w.add("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		w.add("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		w.add("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != 0 {
		w.add("target_id = ?", filter.TargetID)
	}
	if !filter.From.IsZero() {
		w.add("timestamp >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("timestamp <= ?", filter.To.UTC())
	}

	var total int
	if err := get(ctx, ex, &total, "SELECT COUNT(*) FROM audit_logs"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting audit entries")
	}

	entries := make([]audit.Entry, 0)
	q := "SELECT " + auditColumns + " FROM audit_logs" + w.String() + " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	if err := sel(ctx, ex, &entries, q, append(w.args, page.Size, page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting audit entries")
	}
	return entries, total, nil
}

func (r auditRepository) CountEntriesSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error) {
	var count int
	if err := get(ctx, r.getExec(exec), &count, "SELECT COUNT(*) FROM audit_logs WHERE timestamp >= ?", since.UTC()); err != nil {
		return 0, errors.Wrap(err, "counting audit entries")
	}
	return count, nil
}
