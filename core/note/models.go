// Package note manages teacher notes: their versions, publication status and departments.
package note

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studentnotes/core"
)

// Statuses
const (
	StatusDraft         = "DRAFT"
	StatusPublished     = "PUBLISHED"
	StatusDeletePending = "DELETE_PENDING"
	StatusDeleted       = "DELETED"
	StatusArchived      = "ARCHIVED"
)

var (
	AllStatuses = []string{StatusDraft, StatusPublished, StatusDeletePending, StatusDeleted, StatusArchived}

	statusDescriptions = map[string]string{
		StatusDraft:         "Draft - not visible to students",
		StatusPublished:     "Published - visible to students",
		StatusDeletePending: "Deletion requested - awaiting admin approval",
		StatusDeleted:       "Soft deleted - not visible, can be restored",
		StatusArchived:      "Archived - not visible, read-only",
	}

	transitions = map[string][]string{
		StatusDraft:         {StatusPublished, StatusArchived},
		StatusPublished:     {StatusDeletePending, StatusArchived},
		StatusDeletePending: {StatusDeleted, StatusPublished},
		StatusDeleted:       {StatusArchived},
		StatusArchived:      nil,
	}
)

// CanTransition reports whether a note may go from status `from` to status `to`.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DescribeStatus returns the human readable description of status.
func DescribeStatus(status string) string { return statusDescriptions[status] }

// IsStatus reports whether s is a known status.
func IsStatus(s string) bool {
	_, ok := statusDescriptions[s]
	return ok
}

type Note struct {
	ID              int       `json:"-" db:"id"`
	PublicID        string    `json:"id" db:"public_id"`
	Title           string    `json:"title" db:"title"`
	Department      string    `json:"department" db:"department"`
	Year            string    `json:"year" db:"year"`
	Section         string    `json:"section" db:"section"`
	Subject         string    `json:"subject" db:"subject"`
	Content         string    `json:"content,omitempty" db:"content"`
	Type            string    `json:"type" db:"type"`
	CurrentVersion  int       `json:"current_version" db:"current_version"`
	Status          string    `json:"status" db:"status"`
	UploadedByID    int       `json:"-" db:"uploaded_by_id"`
	UploadedByEmail string    `json:"uploaded_by_email" db:"uploaded_by_email"`
	UploadedByName  string    `json:"uploaded_by_name" db:"uploaded_by_name"`
	Likes           int       `json:"likes" db:"likes"`
	Dislikes        int       `json:"dislikes" db:"dislikes"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
	PublishedAt     null.Time `json:"published_at" db:"published_at"`
	DeletedAt       null.Time `json:"deleted_at" db:"deleted_at"`
}

// FolderPath is the path of the subject folder holding the note.
func (n Note) FolderPath() string {
	return strings.Join([]string{n.Department, n.Year, n.Section, n.Subject}, "/")
}

func (n Note) StatusDescription() string { return DescribeStatus(n.Status) }

// VisibleToStudents reports whether the note is part of the public tree.
func (n Note) VisibleToStudents() bool { return n.Status == StatusPublished }

// Editable reports whether the note content may still change.
func (n Note) Editable() bool {
	return n.Status != StatusDeleted && n.Status != StatusArchived
}

// TransitionTo moves the note to status `to`, stamping the related timestamps.
func (n *Note) TransitionTo(to string, now time.Time) error {
	if !CanTransition(n.Status, to) {
		return core.NewBusinessRuleError(
			"INVALID_STATUS_TRANSITION",
			fmt.Sprintf("cannot transition note from %s to %s", n.Status, to),
		)
	}
	n.Status = to
	n.UpdatedAt = now
	switch to {
	case StatusPublished:
		n.PublishedAt = null.TimeFrom(now)
		n.DeletedAt = null.Time{}
	case StatusDeleted:
		n.DeletedAt = null.TimeFrom(now)
	}
	return nil
}

// Version is an immutable snapshot of a note's title and content.
type Version struct {
	ID             int       `json:"-" db:"id"`
	NoteID         int       `json:"-" db:"note_id"`
	Number         int       `json:"version_number" db:"number"`
	Title          string    `json:"title" db:"title"`
	Content        string    `json:"content,omitempty" db:"content"`
	SizeBytes      int64     `json:"size_bytes" db:"size_bytes"`
	ContentHash    string    `json:"content_hash" db:"content_hash"`
	CreatedByID    int       `json:"-" db:"created_by_id"`
	CreatedByEmail string    `json:"created_by_email" db:"created_by_email"`
	ChangeSummary  string    `json:"change_summary" db:"change_summary"`
	IsCurrent      bool      `json:"is_current" db:"is_current"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Department struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Label     string    `json:"label" db:"label"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewNote contains information needed to create a new Note.
type NewNote struct {
	Title              string `json:"title" validate:"required,notblank,max=255"`
	Department         string `json:"department" validate:"required,folderkey"`
	Year               string `json:"year" validate:"required,folderkey"`
	Section            string `json:"section" validate:"required,folderkey"`
	Subject            string `json:"subject" validate:"required,folderkey"`
	Content            string `json:"content" validate:"required"`
	ChangeSummary      string `json:"change_summary" validate:"max=500"`
	PublishImmediately bool   `json:"publish_immediately"`
}

func (nn *NewNote) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Department = core.CleanString(nn.Department, true /* lower */)
	nn.Year = core.CleanString(nn.Year, true /* lower */)
	nn.Section = core.CleanString(nn.Section, true /* lower */)
	nn.Subject = core.CleanString(nn.Subject, true /* lower */)
	nn.ChangeSummary = core.CleanString(nn.ChangeSummary)
	return validate.Struct(nn)
}

// FolderPath is the path of the subject folder the note goes to.
func (nn NewNote) FolderPath() string {
	return strings.Join([]string{nn.Department, nn.Year, nn.Section, nn.Subject}, "/")
}

// UpdateNote defines what may change on an existing Note. Empty fields are left unchanged.
// ExpectedVersion, when set, must match the current version of the note.
type UpdateNote struct {
	Title           string  `json:"title" validate:"omitempty,notblank,max=255"`
	Content         *string `json:"content"`
	Department      string  `json:"department" validate:"omitempty,folderkey"`
	Year            string  `json:"year" validate:"omitempty,folderkey"`
	Section         string  `json:"section" validate:"omitempty,folderkey"`
	Subject         string  `json:"subject" validate:"omitempty,folderkey"`
	ChangeSummary   string  `json:"change_summary" validate:"required,notblank,max=500"`
	ExpectedVersion int     `json:"expected_version" validate:"omitempty,min=1"`
}

func (un *UpdateNote) Validate(validate *validator.Validate) error {
	un.Title = core.CleanString(un.Title)
	un.Department = core.CleanString(un.Department, true /* lower */)
	un.Year = core.CleanString(un.Year, true /* lower */)
	un.Section = core.CleanString(un.Section, true /* lower */)
	un.Subject = core.CleanString(un.Subject, true /* lower */)
	un.ChangeSummary = core.CleanString(un.ChangeSummary)
	return validate.Struct(un)
}

type NewDepartment struct {
	Name  string `json:"name" validate:"required,folderkey,max=50"`
	Label string `json:"label" validate:"max=100"`
}

func (nd *NewDepartment) Validate(validate *validator.Validate) error {
	nd.Name = core.CleanString(nd.Name, true /* lower */)
	nd.Label = core.CleanString(nd.Label)
	return validate.Struct(nd)
}

type QueryFilter struct {
	Search     string `query:"search"`
	Status     string `query:"status"`
	Department string `query:"department"`
	Year       string `query:"year"`
	Section    string `query:"section"`
	Subject    string `query:"subject"`
	UploaderID int
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = strings.ToUpper(core.CleanString(qf.Status))
	qf.Department = core.CleanString(qf.Department, true /* lower */)
	qf.Year = core.CleanString(qf.Year, true /* lower */)
	qf.Section = core.CleanString(qf.Section, true /* lower */)
	qf.Subject = core.CleanString(qf.Subject, true /* lower */)
}

// CountFilter restricts note counts to an uploader and/or a creation date.
type CountFilter struct {
	UploaderID int
	Since      time.Time
}

// Counts counts notes by status.
type Counts struct {
	Total         int `json:"total" db:"total"`
	Draft         int `json:"draft" db:"draft"`
	Published     int `json:"published" db:"published"`
	DeletePending int `json:"delete_pending" db:"delete_pending"`
	Deleted       int `json:"deleted" db:"deleted"`
	Archived      int `json:"archived" db:"archived"`
}

// Add counts one note of the given status.
func (c *Counts) Add(status string) { c.AddN(status, 1) }

// AddN counts n notes of the given status.
func (c *Counts) AddN(status string, n int) {
	c.Total += n
	switch status {
	case StatusDraft:
		c.Draft += n
	case StatusPublished:
		c.Published += n
	case StatusDeletePending:
		c.DeletePending += n
	case StatusDeleted:
		c.Deleted += n
	case StatusArchived:
		c.Archived += n
	}
}
