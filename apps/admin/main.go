package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/studentnotes/assets"
	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
	emailsvc "github.com/trezcool/studentnotes/services/email"
	logsvc "github.com/trezcool/studentnotes/services/logger"
	"github.com/trezcool/studentnotes/storage/database"
	sqlxrepos "github.com/trezcool/studentnotes/storage/database/sqlx"
	"github.com/trezcool/studentnotes/storage/static"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile, logger)
	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, conf, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	txRunner := database.NewTxRunner(db)
	auditSvc := audit.NewService(sqlxrepos.NewAuditRepository(db), logger)
	perms := permission.NewService(sqlxrepos.NewPermissionRepository(db), auditSvc, logger)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		engine:   db.DriverName(),
		validate: validate,
		users:    user.NewService(txRunner, sqlxrepos.NewUserRepository(db), perms, auditSvc, mailSvc, conf, logger),
		notes:    note.NewService(txRunner, sqlxrepos.NewNoteRepository(db), perms, auditSvc, conf, logger),
		static:   static.NewOSLoader(conf.Content.Root, conf.Content.Pattern, logger),
		logger:   logger,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
