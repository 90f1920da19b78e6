package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
)

type noteList struct {
	Data     []note.Note   `json:"data"`
	PageInfo core.PageInfo `json:"page_info"`
}

type deletionList struct {
	Data     []deletion.Request `json:"data"`
	PageInfo core.PageInfo      `json:"page_info"`
}

type teacherFixture struct {
	admin   user.User
	teacher user.User
	other   user.User
	token   string
}

func withTeacher(t *testing.T, env *testEnv) teacherFixture {
	t.Helper()
	admin := env.CreateAdmin(t, "Admin", "admin@example.com")
	env.CreateDepartment(t, admin, "cse")
	env.CreateDepartment(t, admin, "ece")
	teacher := env.CreateTeacher(t, admin, "Ada", "ada@example.com", "cse")
	return teacherFixture{
		admin:   admin,
		teacher: teacher,
		other:   env.CreateTeacher(t, admin, "Grace", "grace@example.com", "ece"),
		token:   env.token(t, teacher),
	}
}

func TestTeacherApi_roles(t *testing.T) {
	env := setup(t)
	fx := withTeacher(t, env)
	student := env.CreateStudent(t, "Sam", "sam@example.com")

	env.runTests(t, []httpTest{
		{name: "auth required", path: "/api/teacher/notes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "student", path: "/api/teacher/notes", token: env.token(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "teacher", path: "/api/teacher/notes", token: fx.token, wantCode: http.StatusOK},
		{name: "admin", path: "/api/teacher/notes", token: env.token(t, fx.admin), wantCode: http.StatusOK},
	})
}

func TestTeacherApi_createNote(t *testing.T) {
	env := setup(t)
	fx := withTeacher(t, env)

	t.Run("invalid", func(t *testing.T) {
		rec := env.do(newAuthRequest(http.MethodPost, "/api/teacher/notes", fx.token, []byte(`{"title": "  "}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "title")
		assert.Contains(t, fields, "department")
		assert.Contains(t, fields, "content")
	})

	t.Run("forbidden folder", func(t *testing.T) {
		body := marchallObj(t, note.NewNote{
			Title: "Ohm", Department: "ece", Year: "year1", Section: "section-a", Subject: "circuits", Content: "# Ohm",
		})
		rec := env.do(newAuthRequest(http.MethodPost, "/api/teacher/notes", fx.token, body))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error": "you do not have permission to access folder: ece/year1/section-a/circuits"}`, rec.Body.String())
	})

	t.Run("success", func(t *testing.T) {
		body := marchallObj(t, note.NewNote{
			Title: "TCP", Department: "CSE", Year: "year1", Section: "section-a", Subject: "networks", Content: "# TCP",
		})
		rec := env.do(newAuthRequest(http.MethodPost, "/api/teacher/notes", fx.token, body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var n note.Note
		decode(t, rec, &n)
		assert.NotEmpty(t, n.PublicID)
		assert.Equal(t, "cse", n.Department)
		assert.Equal(t, note.StatusDraft, n.Status)
		assert.Equal(t, 1, n.CurrentVersion)
		assert.Equal(t, fx.teacher.Email, n.UploadedByEmail)
	})

	rec := env.do(newAuthRequest(http.MethodGet, "/api/teacher/notes", fx.token))
	require.Equal(t, http.StatusOK, rec.Code)
	var list noteList
	decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, int64(1), list.PageInfo.TotalElements)

	// notes of others are not listed
	rec = env.do(newAuthRequest(http.MethodGet, "/api/teacher/notes", env.token(t, fx.other)))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Empty(t, list.Data)
}

func TestTeacherApi_noteLifecycle(t *testing.T) {
	env := setup(t)
	fx := withTeacher(t, env)
	n := env.CreateNote(t, fx.teacher, "cse", "networks", "TCP", false)
	path := "/api/teacher/notes/" + n.PublicID

	env.runTests(t, []httpTest{
		{name: "retrieve", path: path, token: fx.token, wantCode: http.StatusOK},
		{name: "unknown note", path: "/api/teacher/notes/nope", token: fx.token, wantCode: http.StatusNotFound},
		{name: "other department", path: path, token: env.token(t, fx.other), wantCode: http.StatusForbidden},
		{
			name: "update without summary", method: http.MethodPut, path: path, token: fx.token,
			body: []byte(`{"title": "TCP/IP"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "stale version", method: http.MethodPut, path: path, token: fx.token,
			body:     []byte(`{"title": "TCP/IP", "change_summary": "rename", "expected_version": 3}`),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "the note was modified by someone else, reload it and try again"}),
		},
	})

	t.Run("update", func(t *testing.T) {
		body := []byte(`{"title": "TCP/IP", "content": "# TCP/IP", "change_summary": "rename", "expected_version": 1}`)
		rec := env.do(newAuthRequest(http.MethodPut, path, fx.token, body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated note.Note
		decode(t, rec, &updated)
		assert.Equal(t, "TCP/IP", updated.Title)
		assert.Equal(t, 2, updated.CurrentVersion)
	})

	t.Run("publish", func(t *testing.T) {
		rec := env.do(newAuthRequest(http.MethodPost, path+"/publish", fx.token))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var published note.Note
		decode(t, rec, &published)
		assert.Equal(t, note.StatusPublished, published.Status)
		assert.True(t, published.PublishedAt.Valid)

		rec = env.do(newAuthRequest(http.MethodPost, path+"/publish", fx.token))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t,
			`{"error": "only draft notes can be published, current status: PUBLISHED", "code": "INVALID_NOTE_STATUS"}`,
			rec.Body.String())
	})

	t.Run("versions", func(t *testing.T) {
		rec := env.do(newAuthRequest(http.MethodGet, path+"/versions", fx.token))
		require.Equal(t, http.StatusOK, rec.Code)
		var versions []note.Version
		decode(t, rec, &versions)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Number)
		assert.True(t, versions[0].IsCurrent)
		assert.Equal(t, "rename", versions[0].ChangeSummary)

		rec = env.do(newAuthRequest(http.MethodGet, path+"/versions/1", fx.token))
		require.Equal(t, http.StatusOK, rec.Code)
		var v note.Version
		decode(t, rec, &v)
		assert.Equal(t, "TCP", v.Title)
		assert.False(t, v.IsCurrent)

		env.runTests(t, []httpTest{
			{name: "unknown version", path: path + "/versions/9", token: fx.token, wantCode: http.StatusNotFound},
			{name: "bad version", path: path + "/versions/abc", token: fx.token, wantCode: http.StatusNotFound},
		})
	})

	t.Run("request delete", func(t *testing.T) {
		rec := env.do(newAuthRequest(http.MethodPost, path+"/request-delete", fx.token, []byte(`{"reason": ""}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(newAuthRequest(http.MethodPost, path+"/request-delete", fx.token, []byte(`{"reason": "outdated"}`)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var r deletion.Request
		decode(t, rec, &r)
		assert.Equal(t, deletion.StatusPending, r.Status)
		assert.Equal(t, "outdated", r.Reason)
		assert.Equal(t, n.PublicID, r.Note.PublicID)
		assert.Equal(t, fx.teacher.Email, r.RequestedBy.Email)

		rec = env.do(newAuthRequest(http.MethodPost, path+"/request-delete", fx.token, []byte(`{"reason": "again"}`)))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error": "a pending deletion request already exists for note `+n.PublicID+`"}`, rec.Body.String())

		rec = env.do(newAuthRequest(http.MethodGet, "/api/teacher/deletion-requests?status=pending", fx.token))
		require.Equal(t, http.StatusOK, rec.Code)
		var list deletionList
		decode(t, rec, &list)
		require.Len(t, list.Data, 1)
		assert.Equal(t, r.PublicID, list.Data[0].PublicID)

		rec = env.do(newAuthRequest(http.MethodGet, "/api/teacher/deletion-requests", env.token(t, fx.other)))
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &list)
		assert.Empty(t, list.Data)

		rec = env.do(newAuthRequest(http.MethodGet, "/api/teacher/deletion-requests?from=yesterday", fx.token))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTeacherApi_dashboard(t *testing.T) {
	env := setup(t)
	fx := withTeacher(t, env)
	env.CreateNote(t, fx.teacher, "cse", "networks", "TCP", true)
	env.CreateNote(t, fx.teacher, "cse", "compilers", "Parsing", false)

	rec := env.do(newAuthRequest(http.MethodGet, "/api/teacher/dashboard", fx.token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dash struct {
		Summary struct {
			Notes            note.Counts `json:"notes"`
			PendingDeletions int         `json:"pending_deletions"`
		} `json:"summary"`
		RecentNotes []note.Note            `json:"recent_notes"`
		Folders     map[string][]note.Note `json:"folders"`
	}
	decode(t, rec, &dash)
	assert.Equal(t, note.Counts{Total: 2, Draft: 1, Published: 1}, dash.Summary.Notes)
	assert.Equal(t, 0, dash.Summary.PendingDeletions)
	assert.Len(t, dash.RecentNotes, 2)
	assert.Len(t, dash.Folders, 2)
}
