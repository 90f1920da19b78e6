package user

import (
	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
)

// NewServiceMock returns a Service sending its emails synchronously.
func NewServiceMock(
	db core.TxRunner,
	repo Repository,
	perms PermissionGranter,
	auditSvc *audit.Service,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) Service {
	svc := NewService(db, repo, perms, auditSvc, mailSvc, conf, logger).(*service)
	svc.dispatch = func(fn func()) { fn() }
	return svc
}
