package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
)

type teacherApi struct {
	auth      *auth
	notes     *note.Service
	deletions *deletion.Service
	dashboard *dashboard.Service
	catalog   *catalog.Service
	validate  *validator.Validate
}

func registerTeacherAPI(g *echo.Group, jwt echo.MiddlewareFunc, a *auth, deps ServerDeps) {
	api := teacherApi{
		auth:      a,
		notes:     deps.NoteSvc,
		deletions: deps.DeletionSvc,
		dashboard: deps.DashboardSvc,
		catalog:   deps.Catalog,
		validate:  deps.Validate,
	}

	tg := g.Group("/teacher", jwt, roleMiddleware(a, user.RoleTeacher, user.RoleAdmin))
	tg.GET("/dashboard", api.getDashboard)
	tg.GET("/deletion-requests", api.queryDeletionRequests)
	tg.GET("/notes", api.queryNotes)
	tg.POST("/notes", api.createNote)

	ng := tg.Group("/notes/:publicId")
	ng.GET("", api.retrieveNote)
	ng.PUT("", api.updateNote)
	ng.POST("/publish", api.publishNote)
	ng.GET("/versions", api.queryVersions)
	ng.GET("/versions/:number", api.retrieveVersion)
	ng.POST("/request-delete", api.requestDelete)
}

// Handlers

func (api *teacherApi) getDashboard(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.dashboard.TeacherDashboard(ctx.Request().Context(), usr, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "building teacher dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *teacherApi) queryNotes(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	filter := new(note.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(err)
	}
	filter.UploaderID = usr.ID
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

func (api *teacherApi) createNote(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data note.NewNote
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.notes.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating note")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusCreated, n)
}

func (api *teacherApi) contextNote(ctx echo.Context) (user.User, note.Note, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return user.User{}, note.Note{}, err
	}
	n, err := api.notes.GetForUser(ctx.Request().Context(), usr, ctx.Param("publicId"))
	if err != nil {
		return user.User{}, note.Note{}, errors.Wrap(err, "finding note")
	}
	return usr, n, nil
}

func (api *teacherApi) retrieveNote(ctx echo.Context) error {
	_, n, err := api.contextNote(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *teacherApi) updateNote(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data note.UpdateNote
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNote")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.notes.Update(ctx.Request().Context(), usr, ctx.Param("publicId"), data)
	if err != nil {
		return errors.Wrap(err, "updating note")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, n)
}

func (api *teacherApi) publishNote(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.notes.Publish(ctx.Request().Context(), usr, ctx.Param("publicId"))
	if err != nil {
		return errors.Wrap(err, "publishing note")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, n)
}

func (api *teacherApi) queryVersions(ctx echo.Context) error {
	_, n, err := api.contextNote(ctx)
	if err != nil {
		return err
	}
	versions, err := api.notes.Versions(ctx.Request().Context(), n)
	if err != nil {
		return errors.Wrap(err, "listing note versions")
	}
	if versions == nil {
		versions = []note.Version{}
	}
	return ctx.JSON(http.StatusOK, versions)
}

func (api *teacherApi) retrieveVersion(ctx echo.Context) error {
	number, err := strconv.Atoi(ctx.Param("number"))
	if err != nil {
		return errHttpNotFound
	}
	_, n, err := api.contextNote(ctx)
	if err != nil {
		return err
	}
	v, err := api.notes.Version(ctx.Request().Context(), n, number)
	if err != nil {
		return errors.Wrap(err, "finding note version")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *teacherApi) requestDelete(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	var data deletion.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.deletions.Create(ctx.Request().Context(), usr, ctx.Param("publicId"), data)
	if err != nil {
		return errors.Wrap(err, "requesting note deletion")
	}
	api.catalog.Reload(ctx.Request().Context())
	return ctx.JSON(http.StatusCreated, r)
}

func (api *teacherApi) queryDeletionRequests(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	filter, err := bindDeletionFilter(ctx)
	if err != nil {
		return err
	}
	filter.TeacherID = usr.ID

	requests, pageInfo, err := api.deletions.Query(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying deletion requests")
	}
	if requests == nil {
		requests = []deletion.Request{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Data: requests, PageInfo: pageInfo})
}

func bindDeletionFilter(ctx echo.Context) (deletion.QueryFilter, error) {
	var filter deletion.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		String("status", &filter.Status).
		Time("from", &filter.From, time.RFC3339).
		Time("to", &filter.To, time.RFC3339).
		BindError()
	if err != nil {
		return filter, core.NewValidationError(err)
	}
	return filter, nil
}
