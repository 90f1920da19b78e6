package note

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/tree"
	"github.com/trezcool/studentnotes/core/user"
)

const defaultChangeSummary = "Initial version"

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("note", "")
	ErrVersionNotFound    = core.NewNotFoundError("note version", "")
	ErrDepartmentNotFound = core.NewNotFoundError("department", "")
	ErrDepartmentExists   = errors.New("a department with this name already exists")
	// ErrStaleVersion is returned by Repository.UpdateNote when the note changed since it was read.
	ErrStaleVersion = core.NewConflictError("the note was modified by someone else, reload it and try again")

	errNotOwner    = core.NewForbiddenError("you are not the owner of this note")
	errNotEditable = core.NewBusinessRuleError("NOTE_NOT_EDITABLE", "deleted and archived notes are read-only")
	errNotDraft    = "only draft notes can be published, current status: %s"
)

type Repository interface {
	CreateNote(ctx context.Context, n Note, exec ...core.DBExecutor) (Note, error)
	GetNoteByID(ctx context.Context, id int, exec ...core.DBExecutor) (Note, error)
	GetNoteByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (Note, error)
	// UpdateNote saves n if its stored current version is still prevVersion, ErrStaleVersion otherwise.
	UpdateNote(ctx context.Context, n Note, prevVersion int, exec ...core.DBExecutor) (Note, error)
	// QueryNotes applies AND operation on available QueryFilter fields and returns a page of notes
	// (without content) and the total count.
	QueryNotes(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Paginate, exec ...core.DBExecutor) ([]Note, int, error)
	ListPublishedNotes(ctx context.Context, exec ...core.DBExecutor) ([]Note, error)
	CountNotes(ctx context.Context, filter CountFilter, exec ...core.DBExecutor) (Counts, error)
	// AddReaction increments the likes (like) or dislikes of a published note.
	AddReaction(ctx context.Context, id int, like bool, exec ...core.DBExecutor) (Note, error)

	CreateVersion(ctx context.Context, v Version, exec ...core.DBExecutor) (Version, error)
	ClearCurrentVersion(ctx context.Context, noteID int, exec ...core.DBExecutor) error
	// ListVersions returns the versions of a note, newest first, without content.
	ListVersions(ctx context.Context, noteID int, exec ...core.DBExecutor) ([]Version, error)
	GetVersion(ctx context.Context, noteID, number int, exec ...core.DBExecutor) (Version, error)

	ListDepartments(ctx context.Context, exec ...core.DBExecutor) ([]Department, error)
	GetDepartment(ctx context.Context, name string, exec ...core.DBExecutor) (Department, error)
	CreateDepartment(ctx context.Context, d Department, exec ...core.DBExecutor) (Department, error)
	DeleteDepartment(ctx context.Context, name string, exec ...core.DBExecutor) error
}

var nowFunc = time.Now // mockable

type Service struct {
	db              core.TxRunner
	repo            Repository
	perms           *permission.Service
	audit           *audit.Service
	logger          core.Logger
	maxContentBytes int64
}

func NewService(
	db core.TxRunner,
	repo Repository,
	perms *permission.Service,
	auditSvc *audit.Service,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		db:              db,
		repo:            repo,
		perms:           perms,
		audit:           auditSvc,
		logger:          logger,
		maxContentBytes: conf.MaxContentBytes,
	}
}

func (svc *Service) checkSize(content string) error {
	if svc.maxContentBytes > 0 && int64(len(content)) > svc.maxContentBytes {
		msg := fmt.Sprintf("content exceeds the maximum size of %d bytes", svc.maxContentBytes)
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "content", Error: msg})
	}
	return nil
}

// Create stores a new note, with its first version, in a folder usr may write to.
func (svc *Service) Create(ctx context.Context, usr user.User, nn NewNote) (Note, error) {
	if err := svc.checkSize(nn.Content); err != nil {
		return Note{}, err
	}
	folderPath := nn.FolderPath()
	if err := svc.perms.Assert(ctx, usr, permission.Write, folderPath); err != nil {
		return Note{}, err
	}

	now := nowFunc().UTC()
	n := Note{
		PublicID:        uuid.NewString(),
		Title:           nn.Title,
		Department:      nn.Department,
		Year:            nn.Year,
		Section:         nn.Section,
		Subject:         nn.Subject,
		Content:         nn.Content,
		Type:            tree.TypeMarkdown,
		CurrentVersion:  1,
		Status:          StatusDraft,
		UploadedByID:    usr.ID,
		UploadedByEmail: usr.Email,
		UploadedByName:  usr.Name,
		SizeBytes:       int64(len(nn.Content)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if nn.PublishImmediately {
		_ = n.TransitionTo(StatusPublished, now)
	}
	summary := nn.ChangeSummary
	if summary == "" {
		summary = defaultChangeSummary
	}

	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if n, err = svc.repo.CreateNote(ctx, n, tx); err != nil {
			return errors.Wrap(err, "creating note")
		}
		if err = svc.createVersion(ctx, n, usr, summary, tx); err != nil {
			return err
		}
		_, err = svc.audit.Log(ctx, audit.Record{
			Action:      audit.NoteCreated,
			Actor:       usr.Actor(),
			TargetType:  audit.TargetNote,
			TargetID:    n.ID,
			Description: fmt.Sprintf("Created note '%s' in %s", n.Title, folderPath),
			NewState:    n.Status,
		}, tx)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	svc.logger.Info(fmt.Sprintf("note %s created by %s in %s", n.PublicID, usr.Email, folderPath))
	return n, nil
}

// Update applies un to the note and records a new version.
// Owners may update their notes; others need the manage permission on the folder.
func (svc *Service) Update(ctx context.Context, usr user.User, publicID string, un UpdateNote) (Note, error) {
	if un.Content != nil {
		if err := svc.checkSize(*un.Content); err != nil {
			return Note{}, err
		}
	}

	var n Note
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if n, err = svc.repo.GetNoteByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		if n.UploadedByID != usr.ID {
			if err = svc.perms.Assert(ctx, usr, permission.Manage, n.FolderPath(), tx); err != nil {
				return err
			}
		}
		if !n.Editable() {
			return errNotEditable
		}
		if un.ExpectedVersion != 0 && un.ExpectedVersion != n.CurrentVersion {
			return ErrStaleVersion
		}

		prevTitle, prevVersion, prevFolder := n.Title, n.CurrentVersion, n.FolderPath()
		if un.Title != "" {
			n.Title = un.Title
		}
		if un.Content != nil {
			n.Content = *un.Content
			n.SizeBytes = int64(len(n.Content))
		}
		if un.Department != "" {
			n.Department = un.Department
		}
		if un.Year != "" {
			n.Year = un.Year
		}
		if un.Section != "" {
			n.Section = un.Section
		}
		if un.Subject != "" {
			n.Subject = un.Subject
		}
		if n.FolderPath() != prevFolder {
			// moving a note requires write access to the destination
			if err = svc.perms.Assert(ctx, usr, permission.Write, n.FolderPath(), tx); err != nil {
				return err
			}
		}

		n.CurrentVersion++
		n.UpdatedAt = nowFunc().UTC()
		if n, err = svc.repo.UpdateNote(ctx, n, prevVersion, tx); err != nil {
			return err
		}
		if err = svc.createVersion(ctx, n, usr, un.ChangeSummary, tx); err != nil {
			return err
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:     audit.NoteUpdated,
			Actor:      usr.Actor(),
			TargetType: audit.TargetNote,
			TargetID:   n.ID,
			Description: fmt.Sprintf(
				"Updated note '%s' to version %d: %s", prevTitle, n.CurrentVersion, un.ChangeSummary),
			PreviousState: prevTitle,
			NewState:      n.Title,
		}, tx)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	svc.logger.Info(fmt.Sprintf("note %s updated by %s: version %d", publicID, usr.Email, n.CurrentVersion))
	return n, nil
}

// Publish makes a draft note visible to students. Only its owner or an admin may publish it.
func (svc *Service) Publish(ctx context.Context, usr user.User, publicID string) (Note, error) {
	var n Note
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if n, err = svc.repo.GetNoteByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		if n.UploadedByID != usr.ID && !usr.IsAdmin() {
			return errNotOwner
		}
		if n.Status != StatusDraft {
			return core.NewBusinessRuleError("INVALID_NOTE_STATUS", fmt.Sprintf(errNotDraft, n.Status))
		}
		n, err = svc.Transition(ctx, usr, n, StatusPublished, audit.NotePublished,
			fmt.Sprintf("Published note '%s'", n.Title), tx)
		return err
	})
	if err != nil {
		return Note{}, err
	}

	svc.logger.Info(fmt.Sprintf("note %s published by %s", publicID, usr.Email))
	return n, nil
}

// Archive retires a note for good. Admins only.
func (svc *Service) Archive(ctx context.Context, admin user.User, publicID string) (Note, error) {
	if !admin.IsAdmin() {
		return Note{}, core.NewForbiddenError("only admins can archive notes")
	}

	var n Note
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if n, err = svc.repo.GetNoteByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		n, err = svc.Transition(ctx, admin, n, StatusArchived, audit.NoteArchived,
			fmt.Sprintf("Archived note '%s'", n.Title), tx)
		return err
	})
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

// Transition moves n to status `to`, saves it and logs action on behalf of usr.
func (svc *Service) Transition(
	ctx context.Context,
	usr user.User,
	n Note,
	to, action, description string,
	exec ...core.DBExecutor,
) (Note, error) {
	prevStatus := n.Status
	if err := n.TransitionTo(to, nowFunc().UTC()); err != nil {
		return Note{}, err
	}

	n, err := svc.repo.UpdateNote(ctx, n, n.CurrentVersion, exec...)
	if err != nil {
		return Note{}, err
	}

	_, err = svc.audit.Log(ctx, audit.Record{
		Action:        action,
		Actor:         usr.Actor(),
		TargetType:    audit.TargetNote,
		TargetID:      n.ID,
		Description:   description,
		PreviousState: prevStatus,
		NewState:      n.Status,
	}, exec...)
	if err != nil {
		return Note{}, err
	}
	return n, nil
}

func (svc *Service) createVersion(ctx context.Context, n Note, usr user.User, summary string, exec ...core.DBExecutor) error {
	if err := svc.repo.ClearCurrentVersion(ctx, n.ID, exec...); err != nil {
		return errors.Wrap(err, "clearing current version")
	}

	hash := sha256.Sum256([]byte(n.Content))
	v := Version{
		NoteID:         n.ID,
		Number:         n.CurrentVersion,
		Title:          n.Title,
		Content:        n.Content,
		SizeBytes:      n.SizeBytes,
		ContentHash:    hex.EncodeToString(hash[:]),
		CreatedByID:    usr.ID,
		CreatedByEmail: usr.Email,
		ChangeSummary:  summary,
		IsCurrent:      true,
		CreatedAt:      n.UpdatedAt,
	}
	if _, err := svc.repo.CreateVersion(ctx, v, exec...); err != nil {
		return errors.Wrapf(err, "creating version %d", v.Number)
	}
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id int, exec ...core.DBExecutor) (Note, error) {
	return svc.repo.GetNoteByID(ctx, id, exec...)
}

func (svc *Service) GetByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (Note, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return Note{}, ErrNotFound
	}
	return svc.repo.GetNoteByPublicID(ctx, publicID, exec...)
}

// GetForUser returns the note if usr owns it or may read its folder.
func (svc *Service) GetForUser(ctx context.Context, usr user.User, publicID string) (Note, error) {
	n, err := svc.GetByPublicID(ctx, publicID)
	if err != nil {
		return Note{}, err
	}
	if n.UploadedByID == usr.ID {
		return n, nil
	}
	if err := svc.perms.Assert(ctx, usr, permission.Read, n.FolderPath()); err != nil {
		return Note{}, err
	}
	return n, nil
}

// ListByUploader returns the notes uploaded by uploaderID, optionally with the given status, latest updates first.
func (svc *Service) ListByUploader(ctx context.Context, uploaderID int, status string, page core.Paginate) ([]Note, core.PageInfo, error) {
	filter := QueryFilter{Status: status, UploaderID: uploaderID}
	ordering := []core.DBOrdering{{Field: "updated_at"}}
	return svc.Query(ctx, filter, ordering, page)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Paginate) ([]Note, core.PageInfo, error) {
	filter.Clean()
	page.Clean()
	if filter.Status != "" && !IsStatus(filter.Status) {
		return []Note{}, core.NewPageInfo(page, 0), nil
	}
	notes, total, err := svc.repo.QueryNotes(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "querying notes")
	}
	return notes, core.NewPageInfo(page, int64(total)), nil
}

// Versions returns the version history of a note, newest first.
func (svc *Service) Versions(ctx context.Context, n Note) ([]Version, error) {
	versions, err := svc.repo.ListVersions(ctx, n.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing versions")
	}
	return versions, nil
}

func (svc *Service) Version(ctx context.Context, n Note, number int) (Version, error) {
	return svc.repo.GetVersion(ctx, n.ID, number)
}

// Like adds a like to a published note and returns its likes count.
func (svc *Service) Like(ctx context.Context, id int) (int, error) {
	n, err := svc.repo.AddReaction(ctx, id, true)
	if err != nil {
		return 0, err
	}
	return n.Likes, nil
}

// Dislike adds a dislike to a published note and returns its dislikes count.
func (svc *Service) Dislike(ctx context.Context, id int) (int, error) {
	n, err := svc.repo.AddReaction(ctx, id, false)
	if err != nil {
		return 0, err
	}
	return n.Dislikes, nil
}

func (svc *Service) Counts(ctx context.Context, filter CountFilter) (Counts, error) {
	return svc.repo.CountNotes(ctx, filter)
}

// PublicTree groups the published notes into a content tree. Every department is present, even empty.
func (svc *Service) PublicTree(ctx context.Context) (tree.Tree, error) {
	depts, err := svc.repo.ListDepartments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing departments")
	}
	notes, err := svc.repo.ListPublishedNotes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing published notes")
	}

	t := make(tree.Tree, len(depts))
	for _, d := range depts {
		t.EnsureDepartment(d.Name)
	}
	for _, n := range notes {
		meta := tree.NewMeta(n.Title, tree.DefaultOrder)
		meta.Likes = n.Likes
		meta.Dislikes = n.Dislikes
		t.Add(n.Department, n.Year, n.Section, n.Subject, tree.Entry{
			ID:      strconv.Itoa(n.ID),
			Type:    tree.TypeMarkdown,
			Meta:    meta,
			Content: n.Content,
		})
	}
	return t, nil
}

// FetchTree serves the public tree as a dynamic content source.
func (svc *Service) FetchTree(ctx context.Context) (tree.Tree, error) {
	return svc.PublicTree(ctx)
}

// CheckHealth reports whether the notes storage answers.
func (svc *Service) CheckHealth(ctx context.Context) bool {
	_, err := svc.repo.ListDepartments(ctx)
	return err == nil
}

func (svc *Service) Departments(ctx context.Context) ([]Department, error) {
	return svc.repo.ListDepartments(ctx)
}

func (svc *Service) CreateDepartment(ctx context.Context, admin user.User, nd NewDepartment) (Department, error) {
	d := Department{Name: nd.Name, Label: nd.Label, CreatedAt: nowFunc().UTC()}
	if d.Label == "" {
		d.Label = d.Name
	}

	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		_, err := svc.repo.GetDepartment(ctx, d.Name, tx)
		switch {
		case err == nil:
			return core.NewValidationError(ErrDepartmentExists, core.FieldError{Field: "name", Error: ErrDepartmentExists.Error()})
		case errors.Cause(err) != ErrDepartmentNotFound:
			return err
		}

		if d, err = svc.repo.CreateDepartment(ctx, d, tx); err != nil {
			return errors.Wrap(err, "creating department")
		}
		_, err = svc.audit.Log(ctx, audit.Record{
			Action:      audit.DepartmentCreated,
			Actor:       admin.Actor(),
			TargetType:  audit.TargetDepartment,
			TargetID:    d.ID,
			Description: fmt.Sprintf("Created department %s (%s)", d.Name, d.Label),
		}, tx)
		return err
	})
	if err != nil {
		return Department{}, err
	}
	return d, nil
}

// DeleteDepartment removes a department. Its notes are kept.
func (svc *Service) DeleteDepartment(ctx context.Context, admin user.User, name string) error {
	return svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		d, err := svc.repo.GetDepartment(ctx, name, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteDepartment(ctx, d.Name, tx); err != nil {
			return errors.Wrap(err, "deleting department")
		}
		_, err = svc.audit.Log(ctx, audit.Record{
			Action:      audit.DepartmentDeleted,
			Actor:       admin.Actor(),
			TargetType:  audit.TargetDepartment,
			TargetID:    d.ID,
			Description: fmt.Sprintf("Deleted department %s", d.Name),
		}, tx)
		return err
	})
}
