package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/studentnotes/apps/api/echo"
	"github.com/trezcool/studentnotes/assets"
	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
	emailsvc "github.com/trezcool/studentnotes/services/email"
	logsvc "github.com/trezcool/studentnotes/services/logger"
	"github.com/trezcool/studentnotes/services/notesapi"
	"github.com/trezcool/studentnotes/storage/database"
	sqlxrepos "github.com/trezcool/studentnotes/storage/database/sqlx"
	"github.com/trezcool/studentnotes/storage/static"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	txRunner := database.NewTxRunner(db)
	auditSvc := audit.NewService(sqlxrepos.NewAuditRepository(db), logger)
	permSvc := permission.NewService(sqlxrepos.NewPermissionRepository(db), auditSvc, logger)
	usrSvc := user.NewService(txRunner, sqlxrepos.NewUserRepository(db), permSvc, auditSvc, mailSvc, conf, logger)
	noteSvc := note.NewService(txRunner, sqlxrepos.NewNoteRepository(db), permSvc, auditSvc, conf, logger)
	deletionSvc := deletion.NewService(txRunner, sqlxrepos.NewDeletionRepository(db), noteSvc, permSvc, auditSvc, mailSvc, logger)
	dashboardSvc := dashboard.NewService(usrSvc, noteSvc, deletionSvc, auditSvc, logger)

	// the remote backend serves the dynamic tree when configured, this process otherwise
	var dynamic catalog.DynamicSource = noteSvc
	if conf.Backend.URL != "" {
		dynamic = notesapi.NewClient(conf.Backend.URL, conf.Backend.HealthTimeout, nil)
	}
	catalogSvc := catalog.NewService(static.NewOSLoader(conf.Content.Root, conf.Content.Pattern, logger), dynamic, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, conf, logger)

	user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile, logger)

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if _, err = catalogSvc.Load(ctx); err != nil {
		logger.Error(fmt.Sprintf("loading content: %v", err), err)
	}
	go catalogSvc.RefreshEvery(ctx, conf.Backend.RefreshInterval)

	if conf.Content.Watch {
		watcher := static.NewWatcher(conf.Content.Root, 0, func() {
			if _, err := catalogSvc.Refresh(ctx); err != nil {
				logger.Error(fmt.Sprintf("refreshing content: %v", err), err)
			}
		}, logger)
		if err = watcher.Start(ctx); err != nil {
			logger.Error(fmt.Sprintf("watching content: %v", err), err)
		} else {
			defer watcher.Wait()
		}
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		NoteSvc:       noteSvc,
		PermissionSvc: permSvc,
		DeletionSvc:   deletionSvc,
		AuditSvc:      auditSvc,
		DashboardSvc:  dashboardSvc,
		Catalog:       catalogSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopBackground()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
