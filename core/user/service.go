package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-password/password"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user", "")
	ErrEmailExists = errors.New("a user with this email already exists")

	errCannotDisableSelf  = core.NewBusinessRuleError("CANNOT_DISABLE_SELF", "you cannot disable your own account")
	errCannotDisableAdmin = core.NewForbiddenError("cannot disable admin accounts")
	errNotATeacher        = core.NewBusinessRuleError("NOT_A_TEACHER", "permissions can only be set on teacher accounts")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (User, error)
		GetUserByPublicID(ctx context.Context, publicID string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields and returns a page of users and the total count.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Paginate, exec ...core.DBExecutor) ([]User, int, error)
		// UpdateUser saves every mutable field of usr, its assigned departments included.
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		CountUsers(ctx context.Context, exec ...core.DBExecutor) (Stats, error)
	}

	// PermissionGranter grants folder permissions to users.
	PermissionGranter interface {
		GrantFolder(ctx context.Context, grantedBy User, userID int, g FolderGrant, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckEmailUniqueness(email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		// CreateTeacher creates a teacher account and grants it read & write on its departments.
		// The generated password is returned when nt has none.
		CreateTeacher(ctx context.Context, admin User, nt NewTeacher) (User, string, error)
		Disable(ctx context.Context, admin User, publicID, reason string) (User, error)
		Enable(ctx context.Context, admin User, publicID string) (User, error)
		UpdatePermissions(ctx context.Context, admin User, publicID string, up UpdatePermissions) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByPublicID(ctx context.Context, publicID string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Paginate) ([]User, core.PageInfo, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RecordFailedLogin(ctx context.Context, usr User)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		db       core.TxRunner
		repo     Repository
		perms    PermissionGranter
		audit    *audit.Service
		mailSvc  core.EmailService
		logger   core.Logger
		dispatch func(func())
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.TxRunner,
	repo Repository,
	perms PermissionGranter,
	auditSvc *audit.Service,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) Service {
	secretKey = []byte(conf.SecretKey)
	passwordResetTimeoutDelta = conf.Server.PasswordResetTimeoutDelta

	return &service{
		db:       db,
		repo:     repo,
		perms:    perms,
		audit:    auditSvc,
		mailSvc:  mailSvc,
		logger:   logger,
		dispatch: func(fn func()) { go fn() },
	}
}

func (svc *service) CheckEmailUniqueness(email string, excludedUsers ...User) error {
	return checkEmailUniqueness(context.Background(), svc.repo, email, excludedUsers)
}

func checkEmailUniqueness(ctx context.Context, repo Repository, email string, excludedUsers []User, exec ...core.DBExecutor) error {
	if err := repo.CheckEmailUniqueness(ctx, email, excludedUsers, exec...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		PublicID:            uuid.NewString(),
		Name:                nu.Name,
		Email:               nu.Email,
		Phone:               nu.Phone,
		Role:                nu.Role,
		Status:              StatusActive,
		AssignedDepartments: nu.Departments,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) CreateTeacher(ctx context.Context, admin User, nt NewTeacher) (User, string, error) {
	var generated string
	pwd := nt.Password
	if pwd == "" {
		var err error
		if generated, err = generatePassword(nt.Name, nt.Email); err != nil {
			return User{}, "", errors.Wrap(err, "generating password")
		}
		pwd = generated
	}

	now := time.Now().UTC()
	usr := User{
		PublicID:            uuid.NewString(),
		Name:                nt.Name,
		Email:               nt.Email,
		Phone:               nt.Phone,
		Role:                RoleTeacher,
		Status:              StatusActive,
		AssignedDepartments: nt.Departments,
		CreatedAt:           now,
		UpdatedAt:           now,
		CreatedByID:         null.IntFrom(admin.ID),
	}
	if usr.AssignedDepartments == nil {
		usr.AssignedDepartments = []string{}
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, "", errors.Wrap(err, "hashing password")
	}

	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		if err := checkEmailUniqueness(ctx, svc.repo, usr.Email, nil, tx); err != nil {
			return err
		}

		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "creating teacher")
		}

		// department-level access; deletions go through requests
		for _, dept := range usr.AssignedDepartments {
			grant := FolderGrant{FolderPath: dept, CanRead: true, CanWrite: true}
			if err := svc.perms.GrantFolder(ctx, admin, usr.ID, grant, tx); err != nil {
				return errors.Wrapf(err, "granting %s", dept)
			}
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:      audit.UserCreated,
			Actor:       admin.Actor(),
			TargetType:  audit.TargetUser,
			TargetID:    usr.ID,
			Description: fmt.Sprintf("Created teacher account for %s (%s)", usr.Name, usr.Email),
		}, tx)
		return err
	})
	if err != nil {
		return User{}, "", err
	}

	svc.logger.Info(fmt.Sprintf("teacher %s created by %s", usr.Email, admin.Email))
	svc.dispatch(func() { svc.sendWelcomeMail(usr, pwd) })
	return usr, generated, nil
}

// generatePassword returns a random password complying with the password policy.
func generatePassword(attrs ...string) (string, error) {
	for {
		pwd, err := password.Generate(16, 4, 2, false, false)
		if err != nil {
			return "", err
		}
		if checkPassword(pwd, attrs...) == "" {
			return pwd, nil
		}
	}
}

func (svc *service) Disable(ctx context.Context, admin User, publicID, reason string) (User, error) {
	var usr User
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.GetUserByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		if usr.ID == admin.ID {
			return errCannotDisableSelf
		}
		if usr.IsAdmin() {
			return errCannotDisableAdmin
		}

		prevStatus := usr.Status
		now := time.Now().UTC()
		usr.Status = StatusDisabled
		usr.DisabledAt = null.TimeFrom(now)
		usr.DisabledByID = null.IntFrom(admin.ID)
		usr.DisableReason = null.StringFrom(reason)
		usr.UpdatedAt = now
		if usr, err = svc.repo.UpdateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "disabling user")
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:        audit.UserDisabled,
			Actor:         admin.Actor(),
			TargetType:    audit.TargetUser,
			TargetID:      usr.ID,
			Description:   fmt.Sprintf("Disabled user %s: %s", usr.Email, reason),
			PreviousState: prevStatus,
			NewState:      StatusDisabled,
		}, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}

	svc.logger.Info(fmt.Sprintf("user %s disabled by %s: %s", usr.Email, admin.Email, reason))
	return usr, nil
}

func (svc *service) Enable(ctx context.Context, admin User, publicID string) (User, error) {
	var usr User
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.GetUserByPublicID(ctx, publicID, tx); err != nil {
			return err
		}

		prevStatus := usr.Status
		usr.Status = StatusActive
		usr.DisabledAt = null.Time{}
		usr.DisabledByID = null.Int{}
		usr.DisableReason = null.String{}
		usr.UpdatedAt = time.Now().UTC()
		if usr, err = svc.repo.UpdateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "enabling user")
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:        audit.UserEnabled,
			Actor:         admin.Actor(),
			TargetType:    audit.TargetUser,
			TargetID:      usr.ID,
			Description:   fmt.Sprintf("Re-enabled user %s", usr.Email),
			PreviousState: prevStatus,
			NewState:      StatusActive,
		}, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) UpdatePermissions(ctx context.Context, admin User, publicID string, up UpdatePermissions) (User, error) {
	var usr User
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.GetUserByPublicID(ctx, publicID, tx); err != nil {
			return err
		}
		if !usr.IsTeacher() {
			return errNotATeacher
		}

		prevDepts := strings.Join(usr.AssignedDepartments, ",")
		if up.Departments != nil {
			usr.AssignedDepartments = up.Departments
			usr.UpdatedAt = time.Now().UTC()
			if usr, err = svc.repo.UpdateUser(ctx, usr, tx); err != nil {
				return errors.Wrap(err, "updating departments")
			}
		}

		for _, g := range up.Grants {
			if err := svc.perms.GrantFolder(ctx, admin, usr.ID, g, tx); err != nil {
				return errors.Wrapf(err, "granting %s", g.FolderPath)
			}
		}

		_, err = svc.audit.Log(ctx, audit.Record{
			Action:        audit.UserPermissionsUpdated,
			Actor:         admin.Actor(),
			TargetType:    audit.TargetUser,
			TargetID:      usr.ID,
			Description:   fmt.Sprintf("Updated permissions for user %s", usr.Email),
			PreviousState: prevDepts,
			NewState:      strings.Join(usr.AssignedDepartments, ","),
		}, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByPublicID(ctx context.Context, publicID string) (User, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUserByPublicID(ctx, publicID)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Paginate) ([]User, core.PageInfo, error) {
	filter.Clean()
	page.Clean()
	users, total, err := svc.repo.QueryUsers(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "querying users")
	}
	return users, core.NewPageInfo(page, int64(total)), nil
}

// SetLastLogin stamps a successful login.
func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	err := svc.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.repo.UpdateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "setting last login")
		}
		_, err = svc.audit.Log(ctx, audit.Record{
			Action:      audit.UserLogin,
			Actor:       usr.Actor(),
			TargetType:  audit.TargetUser,
			TargetID:    usr.ID,
			Description: fmt.Sprintf("%s logged in", usr.Email),
		}, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// RecordFailedLogin audits a wrong password for an existing account.
func (svc *service) RecordFailedLogin(ctx context.Context, usr User) {
	_, err := svc.audit.Log(ctx, audit.Record{
		Action:      audit.UserLoginFailed,
		Actor:       usr.Actor(),
		TargetType:  audit.TargetUser,
		TargetID:    usr.ID,
		Description: fmt.Sprintf("Failed login attempt for %s", usr.Email),
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("recording failed login: %v", err), err)
	}
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if tag := checkPassword(pwd, usr.Name, usr.Email); tag != "" {
		return User{}, passwordError(tag)
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.CanLogin() {
		return ErrNotFound
	}
	svc.dispatch(func() { svc.sendPasswordResetMail(usr) })
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken)

	publicID, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidErr
		}
		return err
	}

	switch err := verifyToken(usr, data.Token); err {
	case nil:
	case errTokenExpired:
		return core.NewValidationError(err)
	default:
		return invalidErr
	}

	_, err = svc.SetPassword(ctx, usr, data.Password)
	return err
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.CountUsers(ctx)
}

func (svc *service) sendPasswordResetMail(usr User) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   encodeUID(usr),
			"Token": makeToken(usr),
		},
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) sendWelcomeMail(usr User, pwd string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your teacher account",
		TemplateName: "teacher_welcome",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"Email":       usr.Email,
			"Password":    pwd,
			"Departments": usr.AssignedDepartments,
		},
	}
	svc.mailSvc.SendMessages(msg)
}
