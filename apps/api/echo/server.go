package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc       user.Service
		NoteSvc       *note.Service
		PermissionSvc *permission.Service
		DeletionSvc   *deletion.Service
		AuditSvc      *audit.Service
		DashboardSvc  *dashboard.Service
		Catalog       *catalog.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(correlationIDMiddleware())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	api := s.app.Group("/api", rateLimitMiddleware(conf))
	api.GET("/health", health)

	auth := newAuth(conf, s.deps.UserSvc)
	jwt := middleware.JWTWithConfig(auth.jwtConfig)

	registerContentAPI(api, s.deps)
	registerAuthAPI(api, jwt, auth, s.deps)
	registerTeacherAPI(api, jwt, auth, s.deps)
	registerAdminAPI(api, jwt, auth, s.deps)
}

// Start listens on the configured host. Listener errors are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Student Notes API!")
}

func health(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "OK")
}
