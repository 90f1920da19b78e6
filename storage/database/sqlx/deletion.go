package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/deletion"
)

const (
	deletionColumns = `r.id, r.public_id, r.note_id, r.teacher_id, r.reason, r.status, r.requested_at,
	r.resolved_by_id, a.name AS resolved_by_name, r.resolved_at, r.rejection_reason, r.resolution_key,
	n.public_id AS "note.public_id", n.title AS "note.title", n.department AS "note.department",
	n.year AS "note.year", n.section AS "note.section", n.subject AS "note.subject", n.status AS "note.status",
	t.public_id AS "teacher.public_id", t.name AS "teacher.name", t.email AS "teacher.email"`
	deletionFrom = ` FROM deletion_requests r
	JOIN notes n ON n.id = r.note_id
	JOIN users t ON t.id = r.teacher_id
	LEFT JOIN users a ON a.id = r.resolved_by_id`
)

type deletionRepository struct {
	repo
}

var _ deletion.Repository = (*deletionRepository)(nil) // interface compliance check

func NewDeletionRepository(exec core.DBExecutor) *deletionRepository {
	return &deletionRepository{repo{exec: exec}}
}

func (r deletionRepository) CreateRequest(ctx context.Context, req deletion.Request, exec ...core.DBExecutor) (deletion.Request, error) {
	id, err := insert(ctx, r.getExec(exec), `INSERT INTO deletion_requests
		(public_id, note_id, teacher_id, reason, status, requested_at)
		VALUES (:public_id, :note_id, :teacher_id, :reason, :status, :requested_at)`, req)
	if err != nil {
		return deletion.Request{}, errors.Wrap(err, "inserting deletion request")
	}
	req.ID = id
	return req, nil
}

func (r deletionRepository) GetRequestByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (deletion.Request, error) {
	var req deletion.Request
	if err := get(ctx, r.getExec(exec), &req, "SELECT "+deletionColumns+deletionFrom+" WHERE r.public_id = ?", publicID); err != nil {
		return deletion.Request{}, trapNoRowsErr(err, deletion.ErrNotFound, "getting deletion request")
	}
	return req, nil
}

func (r deletionRepository) HasPendingRequest(ctx context.Context, noteID int, exec ...core.DBExecutor) (bool, error) {
	var count int
	q := "SELECT COUNT(*) FROM deletion_requests WHERE note_id = ? AND status = ?"
	if err := get(ctx, r.getExec(exec), &count, q, noteID, deletion.StatusPending); err != nil {
		return false, errors.Wrap(err, "checking pending deletion requests")
	}
	return count > 0, nil
}

func (r deletionRepository) ResolveRequest(ctx context.Context, req deletion.Request, exec ...core.DBExecutor) (deletion.Request, error) {
	arg := struct {
		deletion.Request
		Pending string `db:"pending"`
	}{req, deletion.StatusPending}

	count, err := update(ctx, r.getExec(exec), `UPDATE deletion_requests SET
		status = :status, resolved_by_id = :resolved_by_id, resolved_at = :resolved_at,
		rejection_reason = :rejection_reason, resolution_key = :resolution_key
		WHERE id = :id AND status = :pending`, arg)
	if err != nil {
		return deletion.Request{}, errors.Wrap(err, "resolving deletion request")
	}
	if count == 0 {
		return deletion.Request{}, deletion.ErrConcurrentResolution
	}
	return req, nil
}

func (r deletionRepository) QueryRequests(
	ctx context.Context,
	filter deletion.QueryFilter,
	page core.Paginate,
	exec ...core.DBExecutor,
) ([]deletion.Request, int, error) {
	ex := r.getExec(exec)

	w := where{}
	if filter.Status != "" {
		w.add("r.status = ?", filter.Status)
	}
	if filter.TeacherID != 0 {
		w.add("r.teacher_id = ?", filter.TeacherID)
	}
	if !filter.From.IsZero() {
		w.add("r.requested_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("r.requested_at <= ?", filter.To.UTC())
	}

	var total int
	if err := get(ctx, ex, &total, "SELECT COUNT(*) FROM deletion_requests r"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting deletion requests")
	}

	reqs := make([]deletion.Request, 0)
	q := "SELECT " + deletionColumns + deletionFrom + w.String() + " ORDER BY r.requested_at DESC, r.id DESC LIMIT ? OFFSET ?"
	if err := sel(ctx, ex, &reqs, q, append(w.args, page.Size, page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting deletion requests")
	}
	return reqs, total, nil
}

func (r deletionRepository) CountRequests(ctx context.Context, status string, exec ...core.DBExecutor) (int, error) {
	var count int
	if err := get(ctx, r.getExec(exec), &count, "SELECT COUNT(*) FROM deletion_requests WHERE status = ?", status); err != nil {
		return 0, errors.Wrap(err, "counting deletion requests")
	}
	return count, nil
}
