package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
)

// Roles
const (
	RoleAdmin   = "ROLE_ADMIN"
	RoleTeacher = "ROLE_TEACHER"
	RoleStudent = "ROLE_STUDENT"
)

// Statuses
const (
	StatusActive   = "ACTIVE"
	StatusDisabled = "DISABLED"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID                  int         `json:"-" db:"id"`
	PublicID            string      `json:"id" db:"public_id"`
	Name                string      `json:"name" db:"name"`
	Email               string      `json:"email" db:"email"`
	Phone               string      `json:"phone" db:"phone"`
	Role                string      `json:"role" db:"role"`
	Status              string      `json:"status" db:"status"`
	AssignedDepartments []string    `json:"assigned_departments" db:"-"`
	PasswordHash        []byte      `json:"-" db:"password_hash"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin           null.Time   `json:"last_login" db:"last_login"` // UTC
	DisabledAt          null.Time   `json:"disabled_at" db:"disabled_at"`
	DisabledByID        null.Int    `json:"-" db:"disabled_by_id"`
	DisableReason       null.String `json:"disable_reason" db:"disable_reason"`
	CreatedByID         null.Int    `json:"-" db:"created_by_id"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// CanLogin reports whether the account is allowed to authenticate.
func (u User) CanLogin() bool { return u.Status == StatusActive }

// InDepartment reports whether dept is one of the user's assigned departments.
func (u User) InDepartment(dept string) bool {
	for _, d := range u.AssignedDepartments {
		if d == dept {
			return true
		}
	}
	return false
}

// Actor identifies the user in the audit log.
func (u User) Actor() audit.Actor {
	return audit.Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}

// NewUser contains information needed to create a new User of any role.
type NewUser struct {
	Name            string   `json:"name" validate:"required,notblank,max=100"`
	Email           string   `json:"email" validate:"required,email"`
	Phone           string   `json:"phone" validate:"omitempty,max=20"`
	Role            string   `json:"role" validate:"required,userrole"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Departments     []string `json:"assigned_departments" validate:"omitempty,dive,folderkey"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Departments = cleanDepartments(nu.Departments)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nu.Email)
}

// NewTeacher contains what an admin provides to create a teacher account.
// A password is generated when none is given.
type NewTeacher struct {
	Name        string   `json:"name" validate:"required,notblank,min=2,max=100"`
	Email       string   `json:"email" validate:"required,email"`
	Phone       string   `json:"phone" validate:"omitempty,max=20"`
	Password    string   `json:"password"`
	Departments []string `json:"assigned_departments" validate:"omitempty,dive,folderkey"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate, svc Service) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Departments = cleanDepartments(nt.Departments)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nt.Email)
}

// FolderGrant is a permission on a folder of the content tree.
type FolderGrant struct {
	FolderPath string     `json:"folder_path" validate:"required,folderpath"`
	CanRead    bool       `json:"can_read"`
	CanWrite   bool       `json:"can_write"`
	CanDelete  bool       `json:"can_delete"`
	CanManage  bool       `json:"can_manage"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// UpdatePermissions replaces the assigned departments (when set) and upserts folder grants.
type UpdatePermissions struct {
	Departments []string      `json:"assigned_departments" validate:"omitempty,dive,folderkey"`
	Grants      []FolderGrant `json:"folder_permissions" validate:"omitempty,dive"`
}

func (up *UpdatePermissions) Validate(validate *validator.Validate) error {
	if up.Departments != nil {
		up.Departments = cleanDepartments(up.Departments)
	}
	for i := range up.Grants {
		up.Grants[i].FolderPath = strings.Trim(core.CleanString(up.Grants[i].FolderPath), "/")
	}
	return validate.Struct(up)
}

type DisableUser struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

func (du *DisableUser) Validate(validate *validator.Validate) error {
	du.Reason = core.CleanString(du.Reason)
	return validate.Struct(du)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search     string `query:"search"`
	Role       string `query:"role"`
	Status     string `query:"status"`
	Department string `query:"department"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Status == "" && qf.Department == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role)
	qf.Status = strings.ToUpper(core.CleanString(qf.Status))
	qf.Department = core.CleanString(qf.Department, true /* lower */)
}

// Stats counts accounts by role and status.
type Stats struct {
	Total    int `json:"total" db:"total"`
	Admins   int `json:"admins" db:"admins"`
	Teachers int `json:"teachers" db:"teachers"`
	Students int `json:"students" db:"students"`
	Active   int `json:"active" db:"active"`
	Disabled int `json:"disabled" db:"disabled"`
}

func cleanDepartments(depts []string) []string {
	seen := make(map[string]bool, len(depts))
	cleaned := make([]string, 0, len(depts))
	for _, d := range depts {
		d = core.CleanString(d, true /* lower */)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		cleaned = append(cleaned, d)
	}
	return cleaned
}
