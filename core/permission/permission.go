// Package permission decides who may read, write, delete or manage a folder of the content tree.
package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/user"
)

// Kinds
const (
	Read   = "READ"
	Write  = "WRITE"
	Delete = "DELETE"
	Manage = "MANAGE"
)

var ErrNotFound = core.NewNotFoundError("folder permission", "")

type (
	FolderPermission struct {
		ID          int       `json:"-" db:"id"`
		UserID      int       `json:"-" db:"user_id"`
		FolderPath  string    `json:"folder_path" db:"folder_path"`
		CanRead     bool      `json:"can_read" db:"can_read"`
		CanWrite    bool      `json:"can_write" db:"can_write"`
		CanDelete   bool      `json:"can_delete" db:"can_delete"`
		CanManage   bool      `json:"can_manage" db:"can_manage"`
		GrantedByID null.Int  `json:"-" db:"granted_by_id"`
		GrantedAt   time.Time `json:"granted_at" db:"granted_at"`
		ExpiresAt   null.Time `json:"expires_at" db:"expires_at"`
		IsActive    bool      `json:"is_active" db:"is_active"`
	}

	Repository interface {
		// ActivePermissions returns the active permissions of a user, expired ones included.
		ActivePermissions(ctx context.Context, userID int, exec ...core.DBExecutor) ([]FolderPermission, error)
		GetPermission(ctx context.Context, userID int, folderPath string, exec ...core.DBExecutor) (FolderPermission, error)
		// SavePermission inserts p, or updates it when p.ID is set.
		SavePermission(ctx context.Context, p FolderPermission, exec ...core.DBExecutor) (FolderPermission, error)
	}
)

// Covers reports whether p applies to path: the same folder or one of its descendants.
func (p FolderPermission) Covers(path string) bool {
	path = strings.Trim(path, "/")
	return path == p.FolderPath || strings.HasPrefix(path, p.FolderPath+"/")
}

// Valid reports whether p is active and not expired at now.
func (p FolderPermission) Valid(now time.Time) bool {
	return p.IsActive && (!p.ExpiresAt.Valid || now.Before(p.ExpiresAt.Time))
}

// Allows reports whether p grants kind.
func (p FolderPermission) Allows(kind string) bool {
	switch kind {
	case Read:
		return p.CanRead
	case Write:
		return p.CanWrite
	case Delete:
		return p.CanDelete
	case Manage:
		return p.CanManage
	}
	return false
}

// Department returns the first segment of a folder path.
func Department(folderPath string) string {
	folderPath = strings.Trim(folderPath, "/")
	if i := strings.IndexByte(folderPath, '/'); i > 0 {
		return folderPath[:i]
	}
	return folderPath
}

var nowFunc = time.Now // mockable

type Service struct {
	repo   Repository
	audit  *audit.Service
	logger core.Logger
}

var _ user.PermissionGranter = (*Service)(nil)

func NewService(repo Repository, auditSvc *audit.Service, logger core.Logger) *Service {
	return &Service{repo: repo, audit: auditSvc, logger: logger}
}

// HasRead: admins, members of the folder's department, or a covering read grant.
func (svc *Service) HasRead(ctx context.Context, usr user.User, folderPath string, exec ...core.DBExecutor) (bool, error) {
	if usr.IsAdmin() || usr.InDepartment(Department(folderPath)) {
		return true, nil
	}
	return svc.granted(ctx, usr.ID, folderPath, Read, exec...)
}

// HasWrite: admins, or department members holding a covering write grant.
func (svc *Service) HasWrite(ctx context.Context, usr user.User, folderPath string, exec ...core.DBExecutor) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	if !usr.InDepartment(Department(folderPath)) {
		return false, nil
	}
	return svc.granted(ctx, usr.ID, folderPath, Write, exec...)
}

func (svc *Service) HasDelete(ctx context.Context, usr user.User, folderPath string, exec ...core.DBExecutor) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	return svc.granted(ctx, usr.ID, folderPath, Delete, exec...)
}

func (svc *Service) HasManage(ctx context.Context, usr user.User, folderPath string, exec ...core.DBExecutor) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	return svc.granted(ctx, usr.ID, folderPath, Manage, exec...)
}

// Check reports whether usr holds the permission kind on folderPath.
// exec lets the check run inside the transaction of the caller.
func (svc *Service) Check(ctx context.Context, usr user.User, kind, folderPath string, exec ...core.DBExecutor) (bool, error) {
	switch kind {
	case Read:
		return svc.HasRead(ctx, usr, folderPath, exec...)
	case Write:
		return svc.HasWrite(ctx, usr, folderPath, exec...)
	case Delete:
		return svc.HasDelete(ctx, usr, folderPath, exec...)
	case Manage:
		return svc.HasManage(ctx, usr, folderPath, exec...)
	}
	return false, errors.Errorf("unknown permission kind %q", kind)
}

// Assert returns a ForbiddenError unless usr holds the permission kind on folderPath.
func (svc *Service) Assert(ctx context.Context, usr user.User, kind, folderPath string, exec ...core.DBExecutor) error {
	ok, err := svc.Check(ctx, usr, kind, folderPath, exec...)
	if err != nil {
		return errors.Wrap(err, "checking permission")
	}
	if !ok {
		svc.logger.Warn(fmt.Sprintf("permission denied: %s attempted %s on %s", usr.Email, kind, folderPath))
		return core.NewForbiddenError(fmt.Sprintf("you do not have permission to access folder: %s", folderPath))
	}
	return nil
}

func (svc *Service) granted(ctx context.Context, userID int, folderPath, kind string, exec ...core.DBExecutor) (bool, error) {
	perms, err := svc.repo.ActivePermissions(ctx, userID, exec...)
	if err != nil {
		return false, errors.Wrap(err, "loading permissions")
	}
	now := nowFunc()
	for _, p := range perms {
		if p.Valid(now) && p.Covers(folderPath) && p.Allows(kind) {
			return true, nil
		}
	}
	return false, nil
}

// Grant creates or replaces the permission of userID on g.FolderPath, and reactivates it.
func (svc *Service) Grant(ctx context.Context, grantedBy user.User, userID int, g user.FolderGrant, exec ...core.DBExecutor) (FolderPermission, error) {
	folderPath := strings.Trim(g.FolderPath, "/")
	p, err := svc.repo.GetPermission(ctx, userID, folderPath, exec...)
	switch {
	case err == nil:
	case errors.Cause(err) == ErrNotFound:
		p = FolderPermission{
			UserID:      userID,
			FolderPath:  folderPath,
			GrantedByID: null.IntFrom(grantedBy.ID),
			GrantedAt:   nowFunc().UTC(),
		}
	default:
		return FolderPermission{}, errors.Wrap(err, "getting permission")
	}

	p.CanRead = g.CanRead
	p.CanWrite = g.CanWrite
	p.CanDelete = g.CanDelete
	p.CanManage = g.CanManage
	p.ExpiresAt = null.TimeFromPtr(g.ExpiresAt)
	p.IsActive = true

	if p, err = svc.repo.SavePermission(ctx, p, exec...); err != nil {
		return FolderPermission{}, errors.Wrap(err, "saving permission")
	}

	_, err = svc.audit.Log(ctx, audit.Record{
		Action:      audit.FolderPermissionGranted,
		Actor:       grantedBy.Actor(),
		TargetType:  audit.TargetFolderPermission,
		TargetID:    p.ID,
		Description: fmt.Sprintf("Granted %s on %s to user %d", p.rights(), folderPath, userID),
	}, exec...)
	if err != nil {
		return FolderPermission{}, err
	}
	return p, nil
}

// GrantFolder grants g to userID.
func (svc *Service) GrantFolder(ctx context.Context, grantedBy user.User, userID int, g user.FolderGrant, exec ...core.DBExecutor) error {
	_, err := svc.Grant(ctx, grantedBy, userID, g, exec...)
	return err
}

// Revoke deactivates the permission of userID on folderPath. Revoking a missing permission is a no-op.
func (svc *Service) Revoke(ctx context.Context, revokedBy user.User, userID int, folderPath string) error {
	folderPath = strings.Trim(folderPath, "/")
	p, err := svc.repo.GetPermission(ctx, userID, folderPath)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "getting permission")
	}
	if !p.IsActive {
		return nil
	}

	p.IsActive = false
	if p, err = svc.repo.SavePermission(ctx, p); err != nil {
		return errors.Wrap(err, "revoking permission")
	}

	_, err = svc.audit.Log(ctx, audit.Record{
		Action:      audit.FolderPermissionRevoked,
		Actor:       revokedBy.Actor(),
		TargetType:  audit.TargetFolderPermission,
		TargetID:    p.ID,
		Description: fmt.Sprintf("Revoked %s from user %d", folderPath, userID),
	})
	return err
}

// Active returns the permissions of usr that are currently in effect.
func (svc *Service) Active(ctx context.Context, usr user.User) ([]FolderPermission, error) {
	perms, err := svc.repo.ActivePermissions(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "loading permissions")
	}
	now := nowFunc()
	valid := make([]FolderPermission, 0, len(perms))
	for _, p := range perms {
		if p.Valid(now) {
			valid = append(valid, p)
		}
	}
	return valid, nil
}

func (p FolderPermission) rights() string {
	rights := make([]string, 0, 4)
	for _, kind := range []string{Read, Write, Delete, Manage} {
		if p.Allows(kind) {
			rights = append(rights, kind)
		}
	}
	if len(rights) == 0 {
		return "no rights"
	}
	return strings.Join(rights, "+")
}
