package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/permission"
)

type permissionRepository struct {
	db *DB
}

var _ permission.Repository = (*permissionRepository)(nil) // interface compliance check

func NewPermissionRepository(db *DB) permission.Repository {
	return &permissionRepository{db: db}
}

func (repo *permissionRepository) ActivePermissions(_ context.Context, userID int, _ ...core.DBExecutor) ([]permission.FolderPermission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	perms := make([]permission.FolderPermission, 0)
	for _, p := range repo.db.permissions {
		if p.UserID == userID && p.IsActive {
			perms = append(perms, *p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].FolderPath < perms[j].FolderPath })
	return perms, nil
}

func (repo *permissionRepository) GetPermission(
	_ context.Context,
	userID int,
	folderPath string,
	_ ...core.DBExecutor,
) (permission.FolderPermission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.permissions {
		if p.UserID == userID && p.FolderPath == folderPath {
			return *p, nil
		}
	}
	return permission.FolderPermission{}, permission.ErrNotFound
}

func (repo *permissionRepository) SavePermission(
	_ context.Context,
	p permission.FolderPermission,
	_ ...core.DBExecutor,
) (permission.FolderPermission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if p.ID == 0 {
		p.ID = repo.db.nextPK()
	} else if _, ok := repo.db.permissions[p.ID]; !ok {
		return permission.FolderPermission{}, permission.ErrNotFound
	}
	stored := p
	repo.db.permissions[p.ID] = &stored
	return p, nil
}
