// Package dummydb implements the core repositories in memory, for tests.
package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
)

// DB is a set of in-memory tables sharing one lock.
type DB struct {
	sync.RWMutex

	users       map[int]*user.User
	notes       map[int]*note.Note
	versions    map[int]*note.Version
	departments map[string]*note.Department
	permissions map[int]*permission.FolderPermission
	deletions   map[int]*deletion.Request
	audit       []audit.Entry

	pk int
}

func Open() *DB {
	return &DB{
		users:       make(map[int]*user.User),
		notes:       make(map[int]*note.Note),
		versions:    make(map[int]*note.Version),
		departments: make(map[string]*note.Department),
		permissions: make(map[int]*permission.FolderPermission),
		deletions:   make(map[int]*deletion.Request),
	}
}

func (db *DB) nextPK() int {
	db.pk++
	return db.pk
}

// RunInTx runs fn directly: the dummy tables have no transactions.
func (db *DB) RunInTx(ctx context.Context, fn func(tx core.DBExecutor) error) error {
	return fn(nil)
}

var _ core.TxRunner = (*DB)(nil) // interface compliance check

// Repositories bundles a repository of each kind over the same DB.
type Repositories struct {
	DB          *DB
	Users       user.Repository
	Notes       note.Repository
	Permissions permission.Repository
	Deletions   deletion.Repository
	Audit       audit.Repository
}

func NewRepositories() Repositories {
	db := Open()
	return Repositories{
		DB:          db,
		Users:       NewUserRepository(db),
		Notes:       NewNoteRepository(db),
		Permissions: NewPermissionRepository(db),
		Deletions:   NewDeletionRepository(db),
		Audit:       NewAuditRepository(db),
	}
}

func page[T any](items []T, p core.Paginate) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
