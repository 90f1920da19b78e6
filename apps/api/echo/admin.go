package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
)

const headerIdempotencyKey = "Idempotency-Key"

type adminApi struct {
	auth      *auth
	users     user.Service
	notes     *note.Service
	perms     *permission.Service
	deletions *deletion.Service
	audit     *audit.Service
	dashboard *dashboard.Service
	catalog   *catalog.Service
	validate  *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, a *auth, deps ServerDeps) {
	api := adminApi{
		auth:      a,
		users:     deps.UserSvc,
		notes:     deps.NoteSvc,
		perms:     deps.PermissionSvc,
		deletions: deps.DeletionSvc,
		audit:     deps.AuditSvc,
		dashboard: deps.DashboardSvc,
		catalog:   deps.Catalog,
		validate:  deps.Validate,
	}

	ag := g.Group("/admin", jwt, roleMiddleware(a, user.RoleAdmin))
	ag.GET("/overview", api.overview)
	ag.GET("/audit-logs", api.queryAuditLogs)
	ag.POST("/content/refresh", api.refreshContent)

	dg := ag.Group("/deletion-requests")
	dg.GET("", api.queryDeletionRequests)
	dg.GET("/:publicId", api.retrieveDeletionRequest)
	dg.POST("/:publicId/approve", api.approveDeletionRequest)
	dg.POST("/:publicId/reject", api.rejectDeletionRequest)

	tg := ag.Group("/teachers")
	tg.GET("", api.queryTeachers)
	tg.POST("", api.createTeacher)
	tg.GET("/:publicId", api.retrieveTeacher)
	tg.PATCH("/:publicId/permissions", api.updatePermissions)
	tg.DELETE("/:publicId/permissions", api.revokePermission)
	tg.POST("/:publicId/disable", api.disableTeacher)
	tg.POST("/:publicId/enable", api.enableTeacher)

	ag.GET("/departments", api.queryDepartments)
	ag.POST("/departments", api.createDepartment)
	ag.DELETE("/departments/:name", api.deleteDepartment)

	ag.GET("/notes", api.queryNotes)
	ag.POST("/notes/:publicId/archive", api.archiveNote)
}

type (
	// TeacherDetail is a teacher with their active folder permissions.
	TeacherDetail struct {
		user.User
		Permissions []permission.FolderPermission `json:"folder_permissions"`
	}

	RefreshResponse struct {
		Mode             string    `json:"mode"`
		BackendAvailable bool      `json:"backend_available"`
		LoadedAt         time.Time `json:"loaded_at"`
	}
)

// Handlers

func (api *adminApi) overview(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.dashboard.AdminOverview(ctx.Request().Context()))
}

func (api *adminApi) queryAuditLogs(ctx echo.Context) error {
	var filter audit.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		Int("actor_id", &filter.ActorID).
		String("action", &filter.Action).
		String("target_type", &filter.TargetType).
		Int("target_id", &filter.TargetID).
		Time("from", &filter.From, time.RFC3339).
		Time("to", &filter.To, time.RFC3339).
		BindError()
	if err != nil {
		return core.NewValidationError(err)
	}

	entries, pageInfo, err := api.audit.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying audit logs")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Data: entries, PageInfo: pageInfo})
}

func (api *adminApi) refreshContent(ctx echo.Context) error {
	snap, err := api.catalog.Refresh(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "refreshing content")
	}
	return ctx.JSON(http.StatusOK, RefreshResponse{
		Mode:             snap.Mode,
		BackendAvailable: snap.BackendAvailable,
		LoadedAt:         snap.LoadedAt,
	})
}

func (api *adminApi) queryDeletionRequests(ctx echo.Context) error {
	filter, err := bindDeletionFilter(ctx)
	if err != nil {
		return err
	}
	if teacherID := ctx.QueryParam("teacher"); teacherID != "" {
		teacher, err := api.users.GetByPublicID(ctx.Request().Context(), teacherID)
		if err != nil {
			if !core.IsNotFound(err) {
				return errors.Wrap(err, "finding teacher")
			}
			return ctx.JSON(http.StatusOK, ListResponse{
				Data:     []deletion.Request{},
				PageInfo: core.NewPageInfo(bindPage(ctx), 0),
			})
		}
		filter.TeacherID = teacher.ID
	}

	requests, pageInfo, err := api.deletions.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying deletion requests")
	}
	if requests == nil {
		requests = []deletion.Request{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Data: requests, PageInfo: pageInfo})
}

func (api *adminApi) retrieveDeletionRequest(ctx echo.Context) error {
	r, err := api.deletions.Get(ctx.Request().Context(), ctx.Param("publicId"))
	if err != nil {
		return errors.Wrap(err, "finding deletion request")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *adminApi) approveDeletionRequest(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	key := ctx.Request().Header.Get(headerIdempotencyKey)

	r, err := api.deletions.Approve(ctx.Request().Context(), admin, ctx.Param("publicId"), key)
	if err != nil {
		return errors.Wrap(err, "approving deletion request")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, r)
}

func (api *adminApi) rejectDeletionRequest(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data deletion.Rejection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	key := ctx.Request().Header.Get(headerIdempotencyKey)

	r, err := api.deletions.Reject(ctx.Request().Context(), admin, ctx.Param("publicId"), data, key)
	if err != nil {
		return errors.Wrap(err, "rejecting deletion request")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, r)
}

func (api *adminApi) queryTeachers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(err)
	}
	filter.Role = user.RoleTeacher
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, pageInfo, err := api.users.Query(ctx.Request().Context(), *filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Data: users, PageInfo: pageInfo})
}

func (api *adminApi) createTeacher(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data user.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate, api.users); err != nil {
		return err
	}

	// a generated password is mailed to the teacher, never returned
	teacher, _, err := api.users.CreateTeacher(ctx.Request().Context(), admin, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return api.teacherDetail(ctx, http.StatusCreated, teacher)
}

func (api *adminApi) contextTeacher(ctx echo.Context) (user.User, error) {
	usr, err := api.users.GetByPublicID(ctx.Request().Context(), ctx.Param("publicId"))
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding teacher")
	}
	if !usr.IsTeacher() {
		return user.User{}, errHttpNotFound
	}
	return usr, nil
}

func (api *adminApi) teacherDetail(ctx echo.Context, code int, teacher user.User) error {
	perms, err := api.perms.Active(ctx.Request().Context(), teacher)
	if err != nil {
		return errors.Wrap(err, "listing folder permissions")
	}
	if perms == nil {
		perms = []permission.FolderPermission{}
	}
	return ctx.JSON(code, TeacherDetail{User: teacher, Permissions: perms})
}

func (api *adminApi) retrieveTeacher(ctx echo.Context) error {
	teacher, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}
	return api.teacherDetail(ctx, http.StatusOK, teacher)
}

func (api *adminApi) updatePermissions(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}

	var data user.UpdatePermissions
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePermissions")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err = api.users.UpdatePermissions(ctx.Request().Context(), admin, teacher.PublicID, data)
	if err != nil {
		return errors.Wrap(err, "updating permissions")
	}
	return api.teacherDetail(ctx, http.StatusOK, teacher)
}

func (api *adminApi) revokePermission(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}

	folderPath := core.CleanString(ctx.QueryParam("folder_path"))
	if folderPath == "" {
		msg := "this field is required"
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "folder_path", Error: msg})
	}
	if err := api.perms.Revoke(ctx.Request().Context(), admin, teacher.ID, folderPath); err != nil {
		return errors.Wrap(err, "revoking folder permission")
	}
	return api.teacherDetail(ctx, http.StatusOK, teacher)
}

func (api *adminApi) disableTeacher(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}

	var data user.DisableUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DisableUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	teacher, err = api.users.Disable(ctx.Request().Context(), admin, teacher.PublicID, data.Reason)
	if err != nil {
		return errors.Wrap(err, "disabling teacher")
	}
	return ctx.JSON(http.StatusOK, teacher)
}

func (api *adminApi) enableTeacher(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}

	teacher, err = api.users.Enable(ctx.Request().Context(), admin, teacher.PublicID)
	if err != nil {
		return errors.Wrap(err, "enabling teacher")
	}
	return ctx.JSON(http.StatusOK, teacher)
}

func (api *adminApi) queryDepartments(ctx echo.Context) error {
	depts, err := api.notes.Departments(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing departments")
	}
	if depts == nil {
		depts = []note.Department{}
	}
	return ctx.JSON(http.StatusOK, depts)
}

func (api *adminApi) createDepartment(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data note.NewDepartment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDepartment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.notes.CreateDepartment(ctx.Request().Context(), admin, data)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusCreated, d)
}

func (api *adminApi) deleteDepartment(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.notes.DeleteDepartment(ctx.Request().Context(), admin, ctx.Param("name")); err != nil {
		return errors.Wrap(err, "deleting department")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) queryNotes(ctx echo.Context) error {
	filter := new(note.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(err)
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	notes, pageInfo, err := api.notes.Query(ctx.Request().Context(), *filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying notes")
	}
	if notes == nil {
		notes = []note.Note{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Data: notes, PageInfo: pageInfo})
}

func (api *adminApi) archiveNote(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.notes.Archive(ctx.Request().Context(), admin, ctx.Param("publicId"))
	if err != nil {
		return errors.Wrap(err, "archiving note")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, n)
}
