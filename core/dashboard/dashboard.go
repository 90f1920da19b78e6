// Package dashboard aggregates the numbers shown on the admin and teacher home pages.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
)

// Unavailable replaces the numbers of a group that could not be computed.
const Unavailable = -1

// Health values
const (
	HealthUp   = "UP"
	HealthDown = "DOWN"
)

const recentNotesSize = 5

type (
	Activity struct {
		Last24h int `json:"last_24h"`
		Last7d  int `json:"last_7d"`
		Last30d int `json:"last_30d"`
	}

	Overview struct {
		Notes            note.Counts `json:"notes"`
		NewNotes         Activity    `json:"new_notes"`
		Users            user.Stats  `json:"users"`
		PendingDeletions int         `json:"pending_deletions"`
		Activity         Activity    `json:"activity"`
		Health           string      `json:"health"`
		GeneratedAt      time.Time   `json:"generated_at"`
	}

	TeacherSummary struct {
		Notes            note.Counts `json:"notes"`
		PendingDeletions int         `json:"pending_deletions"`
	}

	TeacherDashboard struct {
		Summary          TeacherSummary         `json:"summary"`
		RecentNotes      []note.Note            `json:"recent_notes"`
		Folders          map[string][]note.Note `json:"folders"`
		FoldersPageInfo  core.PageInfo          `json:"folders_page_info"`
		DeletionRequests []deletion.Request     `json:"deletion_requests"`
	}
)

var nowFunc = time.Now // mockable

type Service struct {
	users     user.Service
	notes     *note.Service
	deletions *deletion.Service
	audit     *audit.Service
	logger    core.Logger
}

func NewService(
	users user.Service,
	notes *note.Service,
	deletions *deletion.Service,
	auditSvc *audit.Service,
	logger core.Logger,
) *Service {
	return &Service{users: users, notes: notes, deletions: deletions, audit: auditSvc, logger: logger}
}

func unavailableCounts() note.Counts {
	return note.Counts{
		Total:         Unavailable,
		Draft:         Unavailable,
		Published:     Unavailable,
		DeletePending: Unavailable,
		Deleted:       Unavailable,
		Archived:      Unavailable,
	}
}

func unavailableActivity() Activity {
	return Activity{Last24h: Unavailable, Last7d: Unavailable, Last30d: Unavailable}
}

// group runs fn in wg and logs its failure (or panic) instead of failing the whole dashboard.
func (svc *Service) group(wg *conc.WaitGroup, name string, fn func() error, onErr func()) {
	wg.Go(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
			}
			if err != nil {
				svc.logger.Error(fmt.Sprintf("computing dashboard %s: %v", name, err), err)
				onErr()
			}
		}()
		err = fn()
	})
}

func (svc *Service) activity(ctx context.Context, now time.Time, count func(time.Time) (int, error)) (Activity, error) {
	var (
		a   Activity
		err error
	)
	if a.Last24h, err = count(now.Add(-24 * time.Hour)); err != nil {
		return Activity{}, err
	}
	if a.Last7d, err = count(now.AddDate(0, 0, -7)); err != nil {
		return Activity{}, err
	}
	if a.Last30d, err = count(now.AddDate(0, 0, -30)); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// AdminOverview computes every group concurrently. A failing group is reported as Unavailable.
func (svc *Service) AdminOverview(ctx context.Context) Overview {
	now := nowFunc().UTC()
	ov := Overview{GeneratedAt: now}
	var wg conc.WaitGroup

	svc.group(&wg, "note counts", func() (err error) {
		ov.Notes, err = svc.notes.Counts(ctx, note.CountFilter{})
		return
	}, func() { ov.Notes = unavailableCounts() })

	svc.group(&wg, "new notes", func() (err error) {
		ov.NewNotes, err = svc.activity(ctx, now, func(since time.Time) (int, error) {
			c, err := svc.notes.Counts(ctx, note.CountFilter{Since: since})
			return c.Total, err
		})
		return
	}, func() { ov.NewNotes = unavailableActivity() })

	svc.group(&wg, "user stats", func() (err error) {
		ov.Users, err = svc.users.Stats(ctx)
		return
	}, func() {
		ov.Users = user.Stats{
			Total:    Unavailable,
			Admins:   Unavailable,
			Teachers: Unavailable,
			Students: Unavailable,
			Active:   Unavailable,
			Disabled: Unavailable,
		}
	})

	svc.group(&wg, "pending deletions", func() (err error) {
		ov.PendingDeletions, err = svc.deletions.CountPending(ctx)
		return
	}, func() { ov.PendingDeletions = Unavailable })

	svc.group(&wg, "activity", func() (err error) {
		ov.Activity, err = svc.activity(ctx, now, func(since time.Time) (int, error) {
			return svc.audit.CountSince(ctx, since)
		})
		return
	}, func() { ov.Activity = unavailableActivity() })

	svc.group(&wg, "health", func() error {
		ov.Health = HealthUp
		if !svc.notes.CheckHealth(ctx) {
			ov.Health = HealthDown
		}
		return nil
	}, func() { ov.Health = HealthDown })

	wg.Wait()
	return ov
}

// TeacherDashboard gathers the teacher's counts, latest notes, notes per folder (paged) and deletion requests.
func (svc *Service) TeacherDashboard(ctx context.Context, teacher user.User, page core.Paginate) (TeacherDashboard, error) {
	var (
		d      = TeacherDashboard{Folders: make(map[string][]note.Note)}
		wg     conc.WaitGroup
		errs   [4]error
		recent = core.Paginate{Size: recentNotesSize}
	)

	wg.Go(func() {
		d.Summary.Notes, errs[0] = svc.notes.Counts(ctx, note.CountFilter{UploaderID: teacher.ID})
	})
	wg.Go(func() {
		d.RecentNotes, _, errs[1] = svc.notes.ListByUploader(ctx, teacher.ID, "", recent)
	})
	wg.Go(func() {
		var notes []note.Note
		notes, d.FoldersPageInfo, errs[2] = svc.notes.ListByUploader(ctx, teacher.ID, "", page)
		for _, n := range notes {
			d.Folders[n.FolderPath()] = append(d.Folders[n.FolderPath()], n)
		}
	})
	wg.Go(func() {
		filter := deletion.QueryFilter{TeacherID: teacher.ID}
		d.DeletionRequests, _, errs[3] = svc.deletions.Query(ctx, filter, core.Paginate{Size: core.MaxPageSize})
		for _, r := range d.DeletionRequests {
			if !r.IsResolved() {
				d.Summary.PendingDeletions++
			}
		}
	})

	if r := wg.WaitAndRecover(); r != nil {
		return TeacherDashboard{}, r.AsError()
	}
	for _, err := range errs {
		if err != nil {
			return TeacherDashboard{}, errors.Wrap(err, "computing teacher dashboard")
		}
	}
	return d, nil
}
