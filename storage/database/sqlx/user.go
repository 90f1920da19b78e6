package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/user"
)

const userColumns = `id, public_id, name, email, phone, role, status, password_hash, created_at, updated_at,
	last_login, disabled_at, disabled_by_id, disable_reason, created_by_id`

var userOrderings = map[string]string{
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"status":     "status",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec}}
}

func (r userRepository) CheckEmailUniqueness(
	ctx context.Context,
	email string,
	excludedUsers []user.User,
	exec ...core.DBExecutor,
) error {
	w := where{}
	w.add("email = ?", email)
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q, args, err := sqlx.In("id NOT IN (?)", ids)
		if err != nil {
			return errors.Wrap(err, "checking email uniqueness")
		}
		w.add(q, args...)
	}

	var count int
	if err := get(ctx, r.getExec(exec), &count, "SELECT COUNT(*) FROM users"+w.String(), w.args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := r.getExec(exec)
	id, err := insert(ctx, ex, `INSERT INTO users
		(public_id, name, email, phone, role, status, password_hash, created_at, updated_at,
		 last_login, disabled_at, disabled_by_id, disable_reason, created_by_id)
		VALUES (:public_id, :name, :email, :phone, :role, :status, :password_hash, :created_at, :updated_at,
		 :last_login, :disabled_at, :disabled_by_id, :disable_reason, :created_by_id)`, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id

	if err = r.saveDepartments(ctx, ex, usr); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (r userRepository) saveDepartments(ctx context.Context, exec core.DBExecutor, usr user.User) error {
	if _, err := execute(ctx, exec, "DELETE FROM user_departments WHERE user_id = ?", usr.ID); err != nil {
		return errors.Wrap(err, "clearing user departments")
	}
	for _, dept := range usr.AssignedDepartments {
		_, err := execute(ctx, exec, "INSERT INTO user_departments (user_id, department) VALUES (?, ?)", usr.ID, dept)
		if err != nil {
			return errors.Wrapf(err, "assigning department %s", dept)
		}
	}
	return nil
}

// loadDepartments fills the assigned departments of users.
func (r userRepository) loadDepartments(ctx context.Context, exec core.DBExecutor, users []user.User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]int, len(users))
	byID := make(map[int]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
		byID[u.ID] = i
		users[i].AssignedDepartments = []string{}
	}

	q, args, err := sqlx.In(
		"SELECT user_id, department FROM user_departments WHERE user_id IN (?) ORDER BY department", ids)
	if err != nil {
		return errors.Wrap(err, "loading user departments")
	}
	var rows []struct {
		UserID     int    `db:"user_id"`
		Department string `db:"department"`
	}
	if err = sel(ctx, exec, &rows, q, args...); err != nil {
		return errors.Wrap(err, "loading user departments")
	}
	for _, row := range rows {
		i := byID[row.UserID]
		users[i].AssignedDepartments = append(users[i].AssignedDepartments, row.Department)
	}
	return nil
}

func (r userRepository) getUser(ctx context.Context, exec []core.DBExecutor, cond string, arg interface{}) (user.User, error) {
	ex := r.getExec(exec)
	var usr user.User
	if err := get(ctx, ex, &usr, "SELECT "+userColumns+" FROM users WHERE "+cond, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	users := []user.User{usr}
	if err := r.loadDepartments(ctx, ex, users); err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (r userRepository) GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (user.User, error) {
	return r.getUser(ctx, exec, "id = ?", id)
}

func (r userRepository) GetUserByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (user.User, error) {
	return r.getUser(ctx, exec, "public_id = ?", publicID)
}

func (r userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return r.getUser(ctx, exec, "email = ?", email)
}

func (r userRepository) QueryUsers(
	ctx context.Context,
	filter user.QueryFilter,
	ordering []core.DBOrdering,
	page core.Paginate,
	exec ...core.DBExecutor,
) ([]user.User, int, error) {
	ex := r.getExec(exec)

	w := where{}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		w.add("(LOWER(name) LIKE ?"+likeEscape+" OR LOWER(email) LIKE ?"+likeEscape+")", pattern, pattern)
	}
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Department != "" {
		w.add("id IN (SELECT user_id FROM user_departments WHERE department = ?)", filter.Department)
	}

	var total int
	if err := get(ctx, ex, &total, "SELECT COUNT(*) FROM users"+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	q := "SELECT " + userColumns + " FROM users" + w.String() +
		core.OrderByClause(ordering, userOrderings, "created_at DESC") + " LIMIT ? OFFSET ?"
	users := make([]user.User, 0)
	if err := sel(ctx, ex, &users, q, append(w.args, page.Size, page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting users")
	}
	if err := r.loadDepartments(ctx, ex, users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := r.getExec(exec)
	n, err := update(ctx, ex, `UPDATE users SET
		name = :name, email = :email, phone = :phone, role = :role, status = :status,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login,
		disabled_at = :disabled_at, disabled_by_id = :disabled_by_id, disable_reason = :disable_reason
		WHERE id = :id`, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}

	if usr.AssignedDepartments != nil {
		if err = r.saveDepartments(ctx, ex, usr); err != nil {
			return user.User{}, err
		}
	}
	return r.GetUserByID(ctx, usr.ID, ex)
}

func (r userRepository) CountUsers(ctx context.Context, exec ...core.DBExecutor) (user.Stats, error) {
	var stats user.Stats
	err := get(ctx, r.getExec(exec), &stats, `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0) AS admins,
		COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0) AS teachers,
		COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0) AS students,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active,
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS disabled
		FROM users`,
		user.RoleAdmin, user.RoleTeacher, user.RoleStudent, user.StatusActive, user.StatusDisabled)
	if err != nil {
		return user.Stats{}, errors.Wrap(err, "counting users")
	}
	return stats, nil
}
