package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	if usr.AssignedDepartments != nil {
		usr.AssignedDepartments = append([]string{}, usr.AssignedDepartments...)
	} else {
		usr.AssignedDepartments = []string{}
	}
	return usr
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = repo.db.nextPK()
	usr = copyUser(usr)
	stored := copyUser(usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) find(match func(u *user.User) bool) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.users {
		if match(usr) {
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByID(_ context.Context, id int, _ ...core.DBExecutor) (user.User, error) {
	return repo.find(func(u *user.User) bool { return u.ID == id })
}

func (repo *userRepository) GetUserByPublicID(_ context.Context, publicID string, _ ...core.DBExecutor) (user.User, error) {
	return repo.find(func(u *user.User) bool { return u.PublicID == publicID })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string, _ ...core.DBExecutor) (user.User, error) {
	return repo.find(func(u *user.User) bool { return u.Email == email })
}

func (repo *userRepository) QueryUsers(
	_ context.Context,
	filter user.QueryFilter,
	ordering []core.DBOrdering,
	p core.Paginate,
	_ ...core.DBExecutor,
) ([]user.User, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Department != "" && !u.InDepartment(filter.Department) {
			continue
		}
		users = append(users, copyUser(*u))
	}

	// newest first, unless ordered by name
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })
	if len(ordering) > 0 && ordering[0].Field == "name" {
		asc := ordering[0].Ascending
		sort.SliceStable(users, func(i, j int) bool {
			if asc {
				return users[i].Name < users[j].Name
			}
			return users[i].Name > users[j].Name
		})
	}

	return page(users, p), len(users), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.AssignedDepartments == nil {
		usr.AssignedDepartments = orig.AssignedDepartments
	}
	usr.PublicID = orig.PublicID
	usr.CreatedAt = orig.CreatedAt
	usr.CreatedByID = orig.CreatedByID

	stored := copyUser(usr)
	repo.db.users[usr.ID] = &stored
	return copyUser(stored), nil
}

func (repo *userRepository) CountUsers(_ context.Context, _ ...core.DBExecutor) (user.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats user.Stats
	for _, u := range repo.db.users {
		stats.Total++
		switch u.Role {
		case user.RoleAdmin:
			stats.Admins++
		case user.RoleTeacher:
			stats.Teachers++
		case user.RoleStudent:
			stats.Students++
		}
		switch u.Status {
		case user.StatusActive:
			stats.Active++
		case user.StatusDisabled:
			stats.Disabled++
		}
	}
	return stats, nil
}
