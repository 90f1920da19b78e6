package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/permission"
)

const permissionColumns = `id, user_id, folder_path, can_read, can_write, can_delete, can_manage,
	granted_by_id, granted_at, expires_at, is_active`

type permissionRepository struct {
	repo
}

var _ permission.Repository = (*permissionRepository)(nil) // interface compliance check

func NewPermissionRepository(exec core.DBExecutor) *permissionRepository {
	return &permissionRepository{repo{exec: exec}}
}

func (r permissionRepository) ActivePermissions(ctx context.Context, userID int, exec ...core.DBExecutor) ([]permission.FolderPermission, error) {
	perms := make([]permission.FolderPermission, 0)
	q := "SELECT " + permissionColumns + " FROM folder_permissions WHERE user_id = ? AND is_active = ? ORDER BY folder_path"
	if err := sel(ctx, r.getExec(exec), &perms, q, userID, true); err != nil {
		return nil, errors.Wrap(err, "selecting folder permissions")
	}
	return perms, nil
}

func (r permissionRepository) GetPermission(
	ctx context.Context,
	userID int,
	folderPath string,
	exec ...core.DBExecutor,
) (permission.FolderPermission, error) {
	var p permission.FolderPermission
	q := "SELECT " + permissionColumns + " FROM folder_permissions WHERE user_id = ? AND folder_path = ?"
	if err := get(ctx, r.getExec(exec), &p, q, userID, folderPath); err != nil {
		return permission.FolderPermission{}, trapNoRowsErr(err, permission.ErrNotFound, "getting folder permission")
	}
	return p, nil
}

func (r permissionRepository) SavePermission(
	ctx context.Context,
	p permission.FolderPermission,
	exec ...core.DBExecutor,
) (permission.FolderPermission, error) {
	ex := r.getExec(exec)
	if p.ID == 0 {
		id, err := insert(ctx, ex, `INSERT INTO folder_permissions
			(user_id, folder_path, can_read, can_write, can_delete, can_manage, granted_by_id, granted_at, expires_at, is_active)
			VALUES (:user_id, :folder_path, :can_read, :can_write, :can_delete, :can_manage, :granted_by_id, :granted_at,
			 :expires_at, :is_active)`, p)
		if err != nil {
			return permission.FolderPermission{}, errors.Wrap(err, "inserting folder permission")
		}
		p.ID = id
		return p, nil
	}

	count, err := update(ctx, ex, `UPDATE folder_permissions SET
		can_read = :can_read, can_write = :can_write, can_delete = :can_delete, can_manage = :can_manage,
		granted_by_id = :granted_by_id, granted_at = :granted_at, expires_at = :expires_at, is_active = :is_active
		WHERE id = :id`, p)
	if err != nil {
		return permission.FolderPermission{}, errors.Wrap(err, "updating folder permission")
	}
	if count == 0 {
		return permission.FolderPermission{}, permission.ErrNotFound
	}
	return p, nil
}
