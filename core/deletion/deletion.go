// Package deletion handles the requests teachers make to delete their published notes.
package deletion

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
)

// Statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("deletion request", "")
	// ErrConcurrentResolution is returned by Repository.ResolveRequest when the request is no longer pending.
	ErrConcurrentResolution = core.NewConflictError("the deletion request was resolved concurrently")

	errDuplicate       = "a pending deletion request already exists for note %s"
	errAlreadyResolved = core.NewBusinessRuleError("ALREADY_RESOLVED", "this deletion request has already been resolved")
)

type (
	NoteInfo struct {
		PublicID   string `json:"id" db:"public_id"`
		Title      string `json:"title" db:"title"`
		Department string `json:"department" db:"department"`
		Year       string `json:"year" db:"year"`
		Section    string `json:"section" db:"section"`
		Subject    string `json:"subject" db:"subject"`
		Status     string `json:"status" db:"status"`
	}

	UserInfo struct {
		PublicID string `json:"id" db:"public_id"`
		Name     string `json:"name" db:"name"`
		Email    string `json:"email" db:"email"`
	}

	Request struct {
		ID              int         `json:"-" db:"id"`
		PublicID        string      `json:"id" db:"public_id"`
		NoteID          int         `json:"-" db:"note_id"`
		TeacherID       int         `json:"-" db:"teacher_id"`
		Reason          string      `json:"reason" db:"reason"`
		Status          string      `json:"status" db:"status"`
		RequestedAt     time.Time   `json:"requested_at" db:"requested_at"`
		ResolvedByID    null.Int    `json:"-" db:"resolved_by_id"`
		ResolvedByName  null.String `json:"resolved_by_name" db:"resolved_by_name"`
		ResolvedAt      null.Time   `json:"resolved_at" db:"resolved_at"`
		RejectionReason null.String `json:"rejection_reason" db:"rejection_reason"`
		ResolutionKey   null.String `json:"-" db:"resolution_key"`

		// read-only
		Note        NoteInfo `json:"note" db:"note"`
		RequestedBy UserInfo `json:"requested_by" db:"teacher"`
	}

	NewRequest struct {
		Reason string `json:"reason" validate:"required,notblank,max=1000"`
	}

	Rejection struct {
		Reason string `json:"reason" validate:"required,notblank,max=1000"`
	}

	QueryFilter struct {
		Status    string    `query:"status"`
		TeacherID int
		From      time.Time `query:"from"`
		To        time.Time `query:"to"`
	}

	Repository interface {
		CreateRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		GetRequestByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (Request, error)
		HasPendingRequest(ctx context.Context, noteID int, exec ...core.DBExecutor) (bool, error)
		// ResolveRequest saves the resolution of r if it is still pending, ErrConcurrentResolution otherwise.
		ResolveRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		// QueryRequests returns a page of requests matching all the set filter fields, newest first, and the total count.
		QueryRequests(ctx context.Context, filter QueryFilter, page core.Paginate, exec ...core.DBExecutor) ([]Request, int, error)
		CountRequests(ctx context.Context, status string, exec ...core.DBExecutor) (int, error)
	}
)

func (r Request) IsResolved() bool { return r.Status != StatusPending }

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Reason = core.CleanString(nr.Reason)
	return validate.Struct(nr)
}

func (rj *Rejection) Validate(validate *validator.Validate) error {
	rj.Reason = core.CleanString(rj.Reason)
	return validate.Struct(rj)
}

func (qf *QueryFilter) Clean() {
	qf.Status = strings.ToUpper(core.CleanString(qf.Status))
}

var nowFunc = time.Now // mockable

type Service struct {
	db       core.TxRunner
	repo     Repository
	notes    *note.Service
	perms    *permission.Service
	audit    *audit.Service
	mailSvc  core.EmailService
	logger   core.Logger
	dispatch func(func())
}

func NewService(
	db core.TxRunner,
	repo Repository,
	notes *note.Service,
	perms *permission.Service,
	auditSvc *audit.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		notes:    notes,
		perms:    perms,
		audit:    auditSvc,
		mailSvc:  mailSvc,
		logger:   logger,
		dispatch: func(fn func()) { go fn() },
	}
}

// Create asks for the deletion of a published note. The note waits in DELETE_PENDING until an admin decides.
func (svc *Service) Create(ctx context.Context, teacher user.User, notePublicID string, nr NewRequest) (Request, error) {
	var r Request
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		n, err := svc.notes.GetByPublicID(ctx, notePublicID, tx)
		if err != nil {
			return err
		}
		if n.UploadedByID != teacher.ID {
			if err = svc.perms.Assert(ctx, teacher, permission.Manage, n.FolderPath(), tx); err != nil {
				return err
			}
		}

		pending, err := svc.repo.HasPendingRequest(ctx, n.ID, tx)
		if err != nil {
			return errors.Wrap(err, "checking pending requests")
		}
		if pending {
			svc.logger.Warn(fmt.Sprintf("duplicate deletion request by %s for note %s", teacher.Email, notePublicID))
			return core.NewConflictError(fmt.Sprintf(errDuplicate, notePublicID))
		}
		if n.Status != note.StatusPublished {
			return core.NewBusinessRuleError(
				"INVALID_NOTE_STATUS",
				"only published notes can have deletion requests, current status: "+n.Status,
			)
		}

		r = Request{
			PublicID:    uuid.NewString(),
			NoteID:      n.ID,
			TeacherID:   teacher.ID,
			Reason:      nr.Reason,
			Status:      StatusPending,
			RequestedAt: nowFunc().UTC(),
		}
		if r, err = svc.repo.CreateRequest(ctx, r, tx); err != nil {
			return errors.Wrap(err, "creating deletion request")
		}

		_, err = svc.notes.Transition(ctx, teacher, n, note.StatusDeletePending, audit.DeletionRequested,
			fmt.Sprintf("Deletion requested for note '%s': %s", n.Title, nr.Reason), tx)
		if err != nil {
			return err
		}

		r, err = svc.repo.GetRequestByPublicID(ctx, r.PublicID, tx)
		return err
	})
	if err != nil {
		return Request{}, err
	}

	svc.logger.Info(fmt.Sprintf("deletion request %s created by %s for note %s", r.PublicID, teacher.Email, notePublicID))
	return r, nil
}

// Approve soft-deletes the note of a pending request.
// Replaying an approval with the same idempotency key returns the stored result.
func (svc *Service) Approve(ctx context.Context, admin user.User, publicID, key string) (Request, error) {
	return svc.resolve(ctx, admin, publicID, key, StatusApproved, "")
}

// Reject puts the note of a pending request back to PUBLISHED.
// Replaying a rejection with the same idempotency key returns the stored result.
func (svc *Service) Reject(ctx context.Context, admin user.User, publicID string, rj Rejection, key string) (Request, error) {
	return svc.resolve(ctx, admin, publicID, key, StatusRejected, rj.Reason)
}

func (svc *Service) resolve(ctx context.Context, admin user.User, publicID, key, decision, rejection string) (Request, error) {
	if key == "" {
		key = core.RequestInfoFrom(ctx).CorrelationID
	}
	if key == "" {
		key = uuid.NewString()
	}

	var (
		r      Request
		replay bool
	)
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if r, err = svc.repo.GetRequestByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		if r.IsResolved() {
			if r.ResolutionKey.Valid && r.ResolutionKey.String == key {
				replay = true
				return nil
			}
			return errAlreadyResolved
		}

		n, err := svc.notes.GetByID(ctx, r.NoteID, tx)
		if err != nil {
			return errors.Wrap(err, "getting note")
		}

		now := nowFunc().UTC()
		r.Status = decision
		r.ResolvedByID = null.IntFrom(admin.ID)
		r.ResolvedAt = null.TimeFrom(now)
		r.ResolutionKey = null.StringFrom(key)
		r.RejectionReason = null.NewString(rejection, rejection != "")
		if _, err = svc.repo.ResolveRequest(ctx, r, tx); err != nil {
			return err
		}

		var to, action, desc string
		if decision == StatusApproved {
			to, action = note.StatusDeleted, audit.DeletionApproved
			desc = fmt.Sprintf("Approved deletion of note '%s' (requested by %s)", n.Title, r.RequestedBy.Email)
		} else {
			to, action = note.StatusPublished, audit.DeletionRejected
			desc = fmt.Sprintf("Rejected deletion of note '%s': %s", n.Title, rejection)
		}
		prevStatus := n.Status
		if n, err = svc.notes.Transition(ctx, admin, n, to, action, desc, tx); err != nil {
			return err
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:        action,
			Actor:         admin.Actor(),
			TargetType:    audit.TargetDeletionRequest,
			TargetID:      r.ID,
			Description:   desc,
			PreviousState: prevStatus,
			NewState:      n.Status,
		}, tx)
		if err != nil {
			return err
		}

		r, err = svc.repo.GetRequestByPublicID(ctx, publicID, tx)
		return err
	})
	if err != nil {
		return Request{}, err
	}
	if replay {
		svc.logger.Info(fmt.Sprintf("idempotent resolution replayed for deletion request %s", publicID))
		return r, nil
	}

	svc.logger.Info(fmt.Sprintf("deletion request %s %s by %s", publicID, decision, admin.Email))
	svc.dispatch(func() { svc.sendDecisionMail(r) })
	return r, nil
}

func (svc *Service) Get(ctx context.Context, publicID string) (Request, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return Request{}, ErrNotFound
	}
	return svc.repo.GetRequestByPublicID(ctx, publicID)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Paginate) ([]Request, core.PageInfo, error) {
	filter.Clean()
	page.Clean()
	reqs, total, err := svc.repo.QueryRequests(ctx, filter, page)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "querying deletion requests")
	}
	return reqs, core.NewPageInfo(page, int64(total)), nil
}

// CountPending counts the requests awaiting a decision.
func (svc *Service) CountPending(ctx context.Context) (int, error) {
	return svc.repo.CountRequests(ctx, StatusPending)
}

func (svc *Service) sendDecisionMail(r Request) {
	decision := "approved"
	if r.Status == StatusRejected {
		decision = "rejected"
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: r.RequestedBy.Name, Address: r.RequestedBy.Email}},
		Subject:      fmt.Sprintf("Deletion request %s", decision),
		TemplateName: "deletion_decision",
		TemplateData: map[string]interface{}{
			"Name":      r.RequestedBy.Name,
			"NoteTitle": r.Note.Title,
			"Decision":  decision,
			"Reason":    r.RejectionReason.String,
		},
	}
	svc.mailSvc.SendMessages(msg)
}
