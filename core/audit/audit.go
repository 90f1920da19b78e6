// Package audit records who did what to which entity. Entries are append-only.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
)

// Actions
const (
	NoteCreated   = "NOTE_CREATED"
	NoteUpdated   = "NOTE_UPDATED"
	NotePublished = "NOTE_PUBLISHED"
	NoteArchived  = "NOTE_ARCHIVED"
	NoteDeleted   = "NOTE_DELETED"
	NoteRestored  = "NOTE_RESTORED"

	DeletionRequested = "DELETION_REQUESTED"
	DeletionApproved  = "DELETION_APPROVED"
	DeletionRejected  = "DELETION_REJECTED"

	UserCreated            = "USER_CREATED"
	UserDisabled           = "USER_DISABLED"
	UserEnabled            = "USER_ENABLED"
	UserPermissionsUpdated = "USER_PERMISSIONS_UPDATED"
	UserLogin              = "USER_LOGIN"
	UserLogout             = "USER_LOGOUT"
	UserLoginFailed        = "USER_LOGIN_FAILED"

	DepartmentCreated       = "DEPARTMENT_CREATED"
	DepartmentDeleted       = "DEPARTMENT_DELETED"
	FolderPermissionGranted = "FOLDER_PERMISSION_GRANTED"
	FolderPermissionRevoked = "FOLDER_PERMISSION_REVOKED"
)

// Target types
const (
	TargetNote             = "Note"
	TargetDeletionRequest  = "DeletionRequest"
	TargetUser             = "User"
	TargetDepartment       = "Department"
	TargetFolderPermission = "FolderPermission"
)

var descriptions = map[string]string{
	NoteCreated:             "Note was created",
	NoteUpdated:             "Note content was updated",
	NotePublished:           "Note was published",
	NoteArchived:            "Note was archived",
	NoteDeleted:             "Note was soft-deleted",
	NoteRestored:            "Note was restored from deleted state",
	DeletionRequested:       "Deletion was requested",
	DeletionApproved:        "Deletion request was approved",
	DeletionRejected:        "Deletion request was rejected",
	UserCreated:             "User account was created",
	UserDisabled:            "User account was disabled",
	UserEnabled:             "User account was enabled",
	UserPermissionsUpdated:  "User permissions were updated",
	UserLogin:               "User logged in",
	UserLogout:              "User logged out",
	UserLoginFailed:         "Login attempt failed",
	DepartmentCreated:       "Department was created",
	DepartmentDeleted:       "Department was deleted",
	FolderPermissionGranted: "Folder permission was granted",
	FolderPermissionRevoked: "Folder permission was revoked",
}

// Describe returns the human readable description of action.
func Describe(action string) string {
	return descriptions[action]
}

// IsAction reports whether action is a known action.
func IsAction(action string) bool {
	_, ok := descriptions[action]
	return ok
}

type (
	// Actor is whoever performs an audited action.
	Actor struct {
		ID    int
		Email string
		Role  string
	}

	// Record is what a caller logs.
	Record struct {
		Action        string
		Actor         Actor
		TargetType    string
		TargetID      int
		Description   string
		PreviousState string
		NewState      string
	}

	Entry struct {
		ID            int         `json:"id" db:"id"`
		CorrelationID string      `json:"correlation_id" db:"correlation_id"`
		ActorID       int         `json:"actor_id" db:"actor_id"`
		ActorEmail    string      `json:"actor_email" db:"actor_email"`
		ActorRole     string      `json:"actor_role" db:"actor_role"`
		Action        string      `json:"action" db:"action"`
		TargetType    string      `json:"target_type" db:"target_type"`
		TargetID      int         `json:"target_id" db:"target_id"`
		Description   string      `json:"description" db:"description"`
		PreviousState null.String `json:"previous_state" db:"previous_state"`
		NewState      null.String `json:"new_state" db:"new_state"`
		IPAddress     string      `json:"ip_address,omitempty" db:"ip_address"`
		UserAgent     string      `json:"user_agent,omitempty" db:"user_agent"`
		Timestamp     time.Time   `json:"timestamp" db:"timestamp"`
	}

	QueryFilter struct {
		ActorID    int       `query:"actor_id"`
		Action     string    `query:"action"`
		TargetType string    `query:"target_type"`
		TargetID   int       `query:"target_id"`
		From       time.Time `query:"from"`
		To         time.Time `query:"to"`
	}

	Repository interface {
		CreateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		// QueryEntries returns a page of entries matching all the set filter fields, newest first, and the total count.
		QueryEntries(ctx context.Context, filter QueryFilter, page core.Paginate, exec ...core.DBExecutor) ([]Entry, int, error)
		CountEntriesSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error)
	}
)

// ActionDescription is the description of the entry's action.
func (e Entry) ActionDescription() string { return Describe(e.Action) }

func (qf *QueryFilter) Clean() {
	qf.Action = core.CleanString(qf.Action)
	qf.TargetType = core.CleanString(qf.TargetType)
}

var nowFunc = time.Now // mockable

type Service struct {
	repo   Repository
	logger core.Logger
}

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log records rec, within the caller's transaction when exec is given.
func (svc *Service) Log(ctx context.Context, rec Record, exec ...core.DBExecutor) (Entry, error) {
	info := core.RequestInfoFrom(ctx)
	if info.CorrelationID == "" {
		info.CorrelationID = uuid.NewString()
	}

	e := Entry{
		CorrelationID: info.CorrelationID,
		ActorID:       rec.Actor.ID,
		ActorEmail:    rec.Actor.Email,
		ActorRole:     rec.Actor.Role,
		Action:        rec.Action,
		TargetType:    rec.TargetType,
		TargetID:      rec.TargetID,
		Description:   rec.Description,
		PreviousState: null.NewString(rec.PreviousState, rec.PreviousState != ""),
		NewState:      null.NewString(rec.NewState, rec.NewState != ""),
		IPAddress:     info.IPAddress,
		UserAgent:     info.UserAgent,
		Timestamp:     nowFunc().UTC(),
	}

	e, err := svc.repo.CreateEntry(ctx, e, exec...)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "logging %s", rec.Action)
	}
	svc.logger.Info(fmt.Sprintf(
		"audit: %s by %s on %s:%d - %s", rec.Action, rec.Actor.Email, rec.TargetType, rec.TargetID, rec.Description))
	return e, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Paginate) ([]Entry, core.PageInfo, error) {
	filter.Clean()
	page.Clean()
	entries, total, err := svc.repo.QueryEntries(ctx, filter, page)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "querying audit entries")
	}
	return entries, core.NewPageInfo(page, int64(total)), nil
}

// CountSince counts the entries logged since the given time.
func (svc *Service) CountSince(ctx context.Context, since time.Time) (int, error) {
	return svc.repo.CountEntriesSince(ctx, since)
}
