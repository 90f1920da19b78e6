package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/note"
)

type noteRepository struct {
	db *DB
}

var _ note.Repository = (*noteRepository)(nil) // interface compliance check

func NewNoteRepository(db *DB) note.Repository {
	return &noteRepository{db: db}
}

// withUploader fills the uploader columns the way the SQL join does. Callers hold the lock.
func (repo *noteRepository) withUploader(n note.Note) note.Note {
	if u, ok := repo.db.users[n.UploadedByID]; ok {
		n.UploadedByEmail = u.Email
		n.UploadedByName = u.Name
	}
	return n
}

func (repo *noteRepository) CreateNote(_ context.Context, n note.Note, _ ...core.DBExecutor) (note.Note, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n.ID = repo.db.nextPK()
	stored := n
	repo.db.notes[n.ID] = &stored
	return repo.withUploader(n), nil
}

func (repo *noteRepository) GetNoteByID(_ context.Context, id int, _ ...core.DBExecutor) (note.Note, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.notes[id]; ok {
		return repo.withUploader(*n), nil
	}
	return note.Note{}, note.ErrNotFound
}

func (repo *noteRepository) GetNoteByPublicID(_ context.Context, publicID string, _ ...core.DBExecutor) (note.Note, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, n := range repo.db.notes {
		if n.PublicID == publicID {
			return repo.withUploader(*n), nil
		}
	}
	return note.Note{}, note.ErrNotFound
}

func (repo *noteRepository) UpdateNote(_ context.Context, n note.Note, prevVersion int, _ ...core.DBExecutor) (note.Note, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.notes[n.ID]
	if !ok {
		return note.Note{}, note.ErrNotFound
	}
	if orig.CurrentVersion != prevVersion {
		return note.Note{}, note.ErrStaleVersion
	}
	n.PublicID = orig.PublicID
	n.UploadedByID = orig.UploadedByID
	n.Likes, n.Dislikes = orig.Likes, orig.Dislikes
	n.CreatedAt = orig.CreatedAt

	stored := n
	repo.db.notes[n.ID] = &stored
	return repo.withUploader(n), nil
}

func (repo *noteRepository) QueryNotes(
	_ context.Context,
	filter note.QueryFilter,
	ordering []core.DBOrdering,
	p core.Paginate,
	_ ...core.DBExecutor,
) ([]note.Note, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	notes := make([]note.Note, 0)
	for _, n := range repo.db.notes {
		switch {
		case search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Subject), search),
			filter.Status != "" && n.Status != filter.Status,
			filter.Department != "" && n.Department != filter.Department,
			filter.Year != "" && n.Year != filter.Year,
			filter.Section != "" && n.Section != filter.Section,
			filter.Subject != "" && n.Subject != filter.Subject,
			filter.UploaderID != 0 && n.UploadedByID != filter.UploaderID:
			continue
		}
		summary := repo.withUploader(*n)
		summary.Content = ""
		notes = append(notes, summary)
	}

	// latest updates first, unless ordered by title
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].ID > notes[j].ID
		}
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	if len(ordering) > 0 && ordering[0].Field == "title" {
		asc := ordering[0].Ascending
		sort.SliceStable(notes, func(i, j int) bool {
			if asc {
				return notes[i].Title < notes[j].Title
			}
			return notes[i].Title > notes[j].Title
		})
	}
	return page(notes, p), len(notes), nil
}

func (repo *noteRepository) ListPublishedNotes(_ context.Context, _ ...core.DBExecutor) ([]note.Note, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notes := make([]note.Note, 0)
	for _, n := range repo.db.notes {
		if n.Status == note.StatusPublished {
			notes = append(notes, repo.withUploader(*n))
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

func (repo *noteRepository) CountNotes(_ context.Context, filter note.CountFilter, _ ...core.DBExecutor) (note.Counts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var c note.Counts
	for _, n := range repo.db.notes {
		if filter.UploaderID != 0 && n.UploadedByID != filter.UploaderID {
			continue
		}
		if !filter.Since.IsZero() && n.CreatedAt.Before(filter.Since) {
			continue
		}
		c.Add(n.Status)
	}
	return c, nil
}

func (repo *noteRepository) AddReaction(_ context.Context, id int, like bool, _ ...core.DBExecutor) (note.Note, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.notes[id]
	if !ok || n.Status != note.StatusPublished {
		return note.Note{}, note.ErrNotFound
	}
	if like {
		n.Likes++
	} else {
		n.Dislikes++
	}
	return repo.withUploader(*n), nil
}

func (repo *noteRepository) CreateVersion(_ context.Context, v note.Version, _ ...core.DBExecutor) (note.Version, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	v.ID = repo.db.nextPK()
	stored := v
	repo.db.versions[v.ID] = &stored
	return v, nil
}

func (repo *noteRepository) ClearCurrentVersion(_ context.Context, noteID int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, v := range repo.db.versions {
		if v.NoteID == noteID {
			v.IsCurrent = false
		}
	}
	return nil
}

func (repo *noteRepository) ListVersions(_ context.Context, noteID int, _ ...core.DBExecutor) ([]note.Version, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	versions := make([]note.Version, 0)
	for _, v := range repo.db.versions {
		if v.NoteID == noteID {
			summary := *v
			summary.Content = ""
			versions = append(versions, summary)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Number > versions[j].Number })
	return versions, nil
}

func (repo *noteRepository) GetVersion(_ context.Context, noteID, number int, _ ...core.DBExecutor) (note.Version, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, v := range repo.db.versions {
		if v.NoteID == noteID && v.Number == number {
			return *v, nil
		}
	}
	return note.Version{}, note.ErrVersionNotFound
}

func (repo *noteRepository) ListDepartments(_ context.Context, _ ...core.DBExecutor) ([]note.Department, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	depts := make([]note.Department, 0, len(repo.db.departments))
	for _, d := range repo.db.departments {
		depts = append(depts, *d)
	}
	sort.Slice(depts, func(i, j int) bool { return depts[i].Name < depts[j].Name })
	return depts, nil
}

func (repo *noteRepository) GetDepartment(_ context.Context, name string, _ ...core.DBExecutor) (note.Department, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.departments[name]; ok {
		return *d, nil
	}
	return note.Department{}, note.ErrDepartmentNotFound
}

func (repo *noteRepository) CreateDepartment(_ context.Context, d note.Department, _ ...core.DBExecutor) (note.Department, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, exists := repo.db.departments[d.Name]; exists {
		return note.Department{}, note.ErrDepartmentExists
	}
	d.ID = repo.db.nextPK()
	stored := d
	repo.db.departments[d.Name] = &stored
	return d, nil
}

func (repo *noteRepository) DeleteDepartment(_ context.Context, name string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.departments[name]; !ok {
		return note.ErrDepartmentNotFound
	}
	delete(repo.db.departments, name)
	return nil
}
