package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/note"
)

const (
	noteSummaryColumns = `n.id, n.public_id, n.title, n.department, n.year, n.section, n.subject, n.type,
	n.current_version, n.status, n.uploaded_by_id, u.email AS uploaded_by_email, u.name AS uploaded_by_name,
	n.likes, n.dislikes, n.size_bytes, n.created_at, n.updated_at, n.published_at, n.deleted_at`
	noteColumns = noteSummaryColumns + ", n.content"
	noteFrom    = " FROM notes n JOIN users u ON u.id = n.uploaded_by_id"

	versionSummaryColumns = `id, note_id, number, title, size_bytes, content_hash, created_by_id,
	created_by_email, change_summary, is_current, created_at`
)

var noteOrderings = map[string]string{
	"title":        "n.title",
	"status":       "n.status",
	"department":   "n.department",
	"year":         "n.year",
	"subject":      "n.subject",
	"likes":        "n.likes",
	"created_at":   "n.created_at",
	"updated_at":   "n.updated_at",
	"published_at": "n.published_at",
}

type noteRepository struct {
	repo
}

var _ note.Repository = (*noteRepository)(nil) // interface compliance check

func NewNoteRepository(exec core.DBExecutor) *noteRepository {
	return &noteRepository{repo{exec: exec}}
}

func (r noteRepository) CreateNote(ctx context.Context, n note.Note, exec ...core.DBExecutor) (note.Note, error) {
	id, err := insert(ctx, r.getExec(exec), `INSERT INTO notes
		(public_id, title, department, year, section, subject, content, type, current_version, status,
		 uploaded_by_id, likes, dislikes, size_bytes, created_at, updated_at, published_at, deleted_at)
		VALUES (:public_id, :title, :department, :year, :section, :subject, :content, :type, :current_version, :status,
		 :uploaded_by_id, :likes, :dislikes, :size_bytes, :created_at, :updated_at, :published_at, :deleted_at)`, n)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "inserting note")
	}
	n.ID = id
	return n, nil
}

func (r noteRepository) getNote(ctx context.Context, exec []core.DBExecutor, cond string, arg interface{}) (note.Note, error) {
	var n note.Note
	if err := get(ctx, r.getExec(exec), &n, "SELECT "+noteColumns+noteFrom+" WHERE "+cond, arg); err != nil {
		return note.Note{}, trapNoRowsErr(err, note.ErrNotFound, "getting note")
	}
	return n, nil
}

func (r noteRepository) GetNoteByID(ctx context.Context, id int, exec ...core.DBExecutor) (note.Note, error) {
	return r.getNote(ctx, exec, "n.id = ?", id)
}

func (r noteRepository) GetNoteByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (note.Note, error) {
	return r.getNote(ctx, exec, "n.public_id = ?", publicID)
}

func (r noteRepository) UpdateNote(ctx context.Context, n note.Note, prevVersion int, exec ...core.DBExecutor) (note.Note, error) {
	ex := r.getExec(exec)
	arg := struct {
		note.Note
		PrevVersion int `db:"prev_version"`
	}{n, prevVersion}

	count, err := update(ctx, ex, `UPDATE notes SET
		title = :title, department = :department, year = :year, section = :section, subject = :subject,
		content = :content, current_version = :current_version, status = :status, size_bytes = :size_bytes,
		updated_at = :updated_at, published_at = :published_at, deleted_at = :deleted_at
		WHERE id = :id AND current_version = :prev_version`, arg)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "updating note")
	}
	if count == 0 {
		if _, err = r.GetNoteByID(ctx, n.ID, ex); err != nil {
			return note.Note{}, err
		}
		return note.Note{}, note.ErrStaleVersion
	}
	return r.GetNoteByID(ctx, n.ID, ex)
}

func noteWhere(filter note.QueryFilter) where {
	w := where{}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(LOWER(n.title) LIKE ?"+likeEscape+" OR LOWER(n.subject) LIKE ?"+likeEscape+")", pattern, pattern)
	}
	if filter.Status != "" {
		w.add("n.status = ?", filter.Status)
	}
	if filter.Department != "" {
		w.add("n.department = ?", filter.Department)
	}
	if filter.Year != "" {
		w.add("n.year = ?", filter.Year)
	}
	if filter.Section != "" {
		w.add("n.section = ?", filter.Section)
	}
	if filter.Subject != "" {
		w.add("n.subject = ?", filter.Subject)
	}
	if filter.UploaderID != 0 {
		w.add("n.uploaded_by_id = ?", filter.UploaderID)
	}
	return w
}

func (r noteRepository) QueryNotes(
	ctx context.Context,
	filter note.QueryFilter,
	ordering []core.DBOrdering,
	page core.Paginate,
	exec ...core.DBExecutor,
) ([]note.Note, int, error) {
	ex := r.getExec(exec)
	w := noteWhere(filter)

	var total int
	if err := get(ctx, ex, &total, "SELECT COUNT(*) FROM notes n"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting notes")
	}

	q := "SELECT " + noteSummaryColumns + noteFrom + w.String() +
		core.OrderByClause(ordering, noteOrderings, "n.updated_at DESC") + " LIMIT ? OFFSET ?"
	notes := make([]note.Note, 0)
	if err := sel(ctx, ex, &notes, q, append(w.args, page.Size, page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting notes")
	}
	return notes, total, nil
}

func (r noteRepository) ListPublishedNotes(ctx context.Context, exec ...core.DBExecutor) ([]note.Note, error) {
	notes := make([]note.Note, 0)
	q := "SELECT " + noteColumns + noteFrom + " WHERE n.status = ? ORDER BY n.published_at, n.id"
	if err := sel(ctx, r.getExec(exec), &notes, q, note.StatusPublished); err != nil {
		return nil, errors.Wrap(err, "selecting published notes")
	}
	return notes, nil
}

func (r noteRepository) CountNotes(ctx context.Context, filter note.CountFilter, exec ...core.DBExecutor) (note.Counts, error) {
	w := where{}
	if filter.UploaderID != 0 {
		w.add("uploaded_by_id = ?", filter.UploaderID)
	}
	if !filter.Since.IsZero() {
		w.add("created_at >= ?", filter.Since.UTC())
	}

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	q := "SELECT status, COUNT(*) AS count FROM notes" + w.String() + " GROUP BY status"
	if err := sel(ctx, r.getExec(exec), &rows, q, w.args...); err != nil {
		return note.Counts{}, errors.Wrap(err, "counting notes")
	}

	var c note.Counts
	for _, row := range rows {
		c.AddN(row.Status, row.Count)
	}
	return c, nil
}

func (r noteRepository) AddReaction(ctx context.Context, id int, like bool, exec ...core.DBExecutor) (note.Note, error) {
	ex := r.getExec(exec)
	col := "dislikes"
	if like {
		col = "likes"
	}
	res, err := execute(ctx, ex, "UPDATE notes SET "+col+" = "+col+" + 1 WHERE id = ? AND status = ?", id, note.StatusPublished)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "adding reaction")
	}
	if count, err := res.RowsAffected(); err != nil {
		return note.Note{}, errors.Wrap(err, "adding reaction")
	} else if count == 0 {
		return note.Note{}, note.ErrNotFound
	}
	return r.GetNoteByID(ctx, id, ex)
}

func (r noteRepository) CreateVersion(ctx context.Context, v note.Version, exec ...core.DBExecutor) (note.Version, error) {
	id, err := insert(ctx, r.getExec(exec), `INSERT INTO note_versions
		(note_id, number, title, content, size_bytes, content_hash, created_by_id, created_by_email,
		 change_summary, is_current, created_at)
		VALUES (:note_id, :number, :title, :content, :size_bytes, :content_hash, :created_by_id, :created_by_email,
		 :change_summary, :is_current, :created_at)`, v)
	if err != nil {
		return note.Version{}, errors.Wrap(err, "inserting note version")
	}
	v.ID = id
	return v, nil
}

func (r noteRepository) ClearCurrentVersion(ctx context.Context, noteID int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec), "UPDATE note_versions SET is_current = ? WHERE note_id = ?", false, noteID)
	return errors.Wrap(err, "clearing current version")
}

func (r noteRepository) ListVersions(ctx context.Context, noteID int, exec ...core.DBExecutor) ([]note.Version, error) {
	versions := make([]note.Version, 0)
	q := "SELECT " + versionSummaryColumns + " FROM note_versions WHERE note_id = ? ORDER BY number DESC"
	if err := sel(ctx, r.getExec(exec), &versions, q, noteID); err != nil {
		return nil, errors.Wrap(err, "selecting note versions")
	}
	return versions, nil
}

func (r noteRepository) GetVersion(ctx context.Context, noteID, number int, exec ...core.DBExecutor) (note.Version, error) {
	var v note.Version
	q := "SELECT " + versionSummaryColumns + ", content FROM note_versions WHERE note_id = ? AND number = ?"
	if err := get(ctx, r.getExec(exec), &v, q, noteID, number); err != nil {
		return note.Version{}, trapNoRowsErr(err, note.ErrVersionNotFound, "getting note version")
	}
	return v, nil
}

func (r noteRepository) ListDepartments(ctx context.Context, exec ...core.DBExecutor) ([]note.Department, error) {
	depts := make([]note.Department, 0)
	if err := sel(ctx, r.getExec(exec), &depts, "SELECT id, name, label, created_at FROM departments ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "selecting departments")
	}
	return depts, nil
}

func (r noteRepository) GetDepartment(ctx context.Context, name string, exec ...core.DBExecutor) (note.Department, error) {
	var d note.Department
	q := "SELECT id, name, label, created_at FROM departments WHERE name = ?"
	if err := get(ctx, r.getExec(exec), &d, q, name); err != nil {
		return note.Department{}, trapNoRowsErr(err, note.ErrDepartmentNotFound, "getting department")
	}
	return d, nil
}

func (r noteRepository) CreateDepartment(ctx context.Context, d note.Department, exec ...core.DBExecutor) (note.Department, error) {
	id, err := insert(ctx, r.getExec(exec),
		"INSERT INTO departments (name, label, created_at) VALUES (:name, :label, :created_at)", d)
	if err != nil {
		return note.Department{}, errors.Wrap(err, "inserting department")
	}
	d.ID = id
	return d, nil
}

func (r noteRepository) DeleteDepartment(ctx context.Context, name string, exec ...core.DBExecutor) error {
	res, err := execute(ctx, r.getExec(exec), "DELETE FROM departments WHERE name = ?", name)
	if err != nil {
		return errors.Wrap(err, "deleting department")
	}
	if count, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting department")
	} else if count == 0 {
		return note.ErrDepartmentNotFound
	}
	return nil
}
