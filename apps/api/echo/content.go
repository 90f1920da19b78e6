package echoapi

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/markdown"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/tree"
)

const (
	livePingPeriod   = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
	excerptLength    = 160
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type contentApi struct {
	conf    *core.Config
	notes   *note.Service
	catalog *catalog.Service
	logger  core.Logger
}

func registerContentAPI(g *echo.Group, deps ServerDeps) {
	api := contentApi{
		conf:    deps.Conf,
		notes:   deps.NoteSvc,
		catalog: deps.Catalog,
		logger:  deps.Logger,
	}

	pg := g.Group("/public")
	pg.GET("/tree", api.publicTree)
	pg.GET("/departments", api.departments)
	pg.POST("/notes/:id/like", api.like)
	pg.POST("/notes/:id/dislike", api.dislike)

	tg := g.Group("/tree")
	tg.GET("", api.tree)
	tg.GET("/nav", api.nav)
	tg.GET("/routes", api.routes)
	tg.GET("/live", api.live)

	g.GET("/search", api.search)

	ng := g.Group("/notes/:dept/:year/:section/:subject/:id")
	ng.GET("", api.note)
	ng.GET("/pdf", api.notePDF)
}

type (
	TreeResponse struct {
		Mode             string    `json:"mode"`
		BackendAvailable bool      `json:"backend_available"`
		LoadedAt         time.Time `json:"loaded_at"`
		Tree             tree.Tree `json:"tree"`
	}

	// NoteView is a note of the merged tree, ready for display.
	NoteView struct {
		Route    tree.Route                 `json:"route"`
		Entry    tree.Entry                 `json:"entry"`
		Document *markdown.RenderedDocument `json:"document,omitempty"`
	}

	ReactionResponse struct {
		Likes    *int `json:"likes,omitempty"`
		Dislikes *int `json:"dislikes,omitempty"`
	}

	liveMessage struct {
		Type             string    `json:"type"`
		Mode             string    `json:"mode"`
		BackendAvailable bool      `json:"backend_available"`
		LoadedAt         time.Time `json:"loaded_at"`
	}
)

// Handlers

func (api *contentApi) publicTree(ctx echo.Context) error {
	t, err := api.notes.PublicTree(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building public tree")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *contentApi) departments(ctx echo.Context) error {
	depts, err := api.notes.Departments(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing departments")
	}
	if depts == nil {
		depts = []note.Department{}
	}
	return ctx.JSON(http.StatusOK, depts)
}

func (api *contentApi) like(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	n, err := api.notes.Like(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "liking note")
	}
	return ctx.JSON(http.StatusOK, ReactionResponse{Likes: &n})
}

func (api *contentApi) dislike(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	n, err := api.notes.Dislike(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "disliking note")
	}
	return ctx.JSON(http.StatusOK, ReactionResponse{Dislikes: &n})
}

func (api *contentApi) snapshot(ctx echo.Context) (catalog.Snapshot, error) {
	snap, err := api.catalog.Current(ctx.Request().Context())
	return snap, errors.Wrap(err, "getting content snapshot")
}

func (api *contentApi) tree(ctx echo.Context) error {
	snap, err := api.snapshot(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TreeResponse{
		Mode:             snap.Mode,
		BackendAvailable: snap.BackendAvailable,
		LoadedAt:         snap.LoadedAt,
		Tree:             snap.Tree,
	})
}

func (api *contentApi) nav(ctx echo.Context) error {
	snap, err := api.snapshot(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tree.Normalize(snap.Tree))
}

func (api *contentApi) routes(ctx echo.Context) error {
	snap, err := api.snapshot(ctx)
	if err != nil {
		return err
	}
	routes := tree.Routes(snap.Tree)
	if routes == nil {
		routes = []tree.Route{}
	}
	return ctx.JSON(http.StatusOK, routes)
}

func (api *contentApi) search(ctx echo.Context) error {
	snap, err := api.snapshot(ctx)
	if err != nil {
		return err
	}
	items := tree.Search(snap.Tree, ctx.QueryParam("q"))
	for i := range items {
		items[i].Excerpt = excerpt(snap.Tree, items[i].Path)
	}
	return ctx.JSON(http.StatusOK, items)
}

// excerpt returns the start of the rendered text of the note at path. Components have none.
func excerpt(t tree.Tree, path string) string {
	r, ok := tree.ParseRoutePath(path)
	if !ok {
		return ""
	}
	e, ok := t.Lookup(r.Department, r.Year, r.Section, r.Subject, r.ID)
	if !ok || e.Type == tree.TypeComponent {
		return ""
	}
	html, err := markdown.Render(e.Content)
	if err != nil {
		return ""
	}
	return markdown.Excerpt(html, excerptLength)
}

func (api *contentApi) lookup(ctx echo.Context) (tree.Route, tree.Entry, error) {
	snap, err := api.snapshot(ctx)
	if err != nil {
		return tree.Route{}, tree.Entry{}, err
	}

	dept, year, section, subject, id :=
		ctx.Param("dept"), ctx.Param("year"), ctx.Param("section"), ctx.Param("subject"), ctx.Param("id")
	entry, ok := snap.Tree.Lookup(dept, year, section, subject, id)
	if !ok {
		return tree.Route{}, tree.Entry{}, core.NewNotFoundError("note", tree.RoutePath(dept, year, section, subject, id))
	}
	route := tree.Route{
		Path:       tree.RoutePath(dept, year, section, subject, id),
		Department: dept,
		Year:       year,
		Section:    section,
		Subject:    subject,
		ID:         id,
		Title:      entry.DisplayTitle(),
		Type:       entry.Type,
	}
	return route, entry, nil
}

func (api *contentApi) note(ctx echo.Context) error {
	route, entry, err := api.lookup(ctx)
	if err != nil {
		return err
	}

	view := NoteView{Route: route, Entry: entry}
	if entry.Type != tree.TypeComponent {
		doc, err := markdown.RenderDocument(entry.Content)
		if err != nil {
			return errors.Wrap(err, "rendering note")
		}
		view.Document = &doc
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *contentApi) notePDF(ctx echo.Context) error {
	route, entry, err := api.lookup(ctx)
	if err != nil {
		return err
	}
	if entry.Type == tree.TypeComponent {
		return core.NewBusinessRuleError("NOT_EXPORTABLE", "only markdown notes can be exported to PDF")
	}

	var buf bytes.Buffer
	_, err = markdown.ExportPDF(&buf, markdown.ExportOptions{
		Title:         route.Title,
		Content:       entry.Content,
		Watermark:     api.conf.PDF.Watermark,
		Creator:       api.conf.AppName,
		CanvasWidthPx: api.conf.PDF.PageWidthPx,
		PaddingPx:     api.conf.PDF.PaddingPx,
	})
	if err != nil {
		return errors.Wrap(err, "exporting note to PDF")
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": markdown.FileName(route.Title)})
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ctx.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// live pushes a message on the websocket every time the content snapshot changes.
func (api *contentApi) live(ctx echo.Context) error {
	ws, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer ws.Close()

	updates, unsubscribe := api.catalog.Subscribe()
	defer unsubscribe()

	var sent time.Time
	send := func(snap catalog.Snapshot) error {
		if snap.LoadedAt.Equal(sent) {
			return nil
		}
		sent = snap.LoadedAt
		_ = ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return ws.WriteJSON(liveMessage{
			Type:             "tree",
			Mode:             snap.Mode,
			BackendAvailable: snap.BackendAvailable,
			LoadedAt:         snap.LoadedAt,
		})
	}

	if snap, err := api.catalog.Current(ctx.Request().Context()); err == nil {
		if err = send(snap); err != nil {
			return nil
		}
	} else {
		api.logger.Warn("getting content snapshot for live client", err)
	}

	// the client is gone as soon as reading fails
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := send(snap); err != nil {
				return nil
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return nil
			}
		}
	}
}
