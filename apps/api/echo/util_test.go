package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/studentnotes/apps/api/echo"
	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/user"
	"github.com/trezcool/studentnotes/internal/testapp"
	"github.com/trezcool/studentnotes/storage/static"
)

const osiNote = `---
title: OSI Model
order: 1
---
# OSI

Seven layers.

## 1. Physical
Bits on the wire.

## Data Link
Frames.
`

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	defaultPage     = core.Paginate{}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testEnv struct {
	*testapp.App
	server  *echoapi.Server
	catalog *catalog.Service
	content afero.Fs
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	app := testapp.New()

	content := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(content, "pages/cse/year1/section-a/networks/osi.md", []byte(osiNote), 0o644))
	require.NoError(t, afero.WriteFile(content, "pages/cse/year1/section-a/networks/lab.jsx", []byte("export default Lab"), 0o644))

	cat := catalog.NewService(static.NewLoader(content, "", app.Logger), app.Notes, app.Logger)
	return &testEnv{
		App:     app,
		server:  newServer(app, cat),
		catalog: cat,
		content: content,
	}
}

func newServer(app *testapp.App, cat *catalog.Service) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          app.Conf,
		Logger:        app.Logger,
		Validate:      app.Validate,
		Translator:    app.Translator,
		UserSvc:       app.Users,
		NoteSvc:       app.Notes,
		PermissionSvc: app.Permissions,
		DeletionSvc:   app.Deletions,
		AuditSvc:      app.Audit,
		DashboardSvc:  app.Dashboard,
		Catalog:       cat,
	})
}

func (env *testEnv) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.Conf, echoapi.GetUserClaims(env.Conf, usr))
	require.NoError(t, err)
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runTests serves every test and checks its code & data.
func (env *testEnv) runTests(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := env.do(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
