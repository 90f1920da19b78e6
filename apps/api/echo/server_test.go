package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_home(t *testing.T) {
	env := setup(t)

	rec := env.do(newRequest(http.MethodGet, "/"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Student Notes API!", rec.Body.String())

	rec = env.do(newRequest(http.MethodGet, "/api/health/"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_correlationID(t *testing.T) {
	env := setup(t)

	rec := env.do(newRequest(http.MethodGet, "/api/health"))
	generated := rec.Header().Get("X-Correlation-ID")
	assert.Len(t, generated, 36)

	req, rec := newRequest(http.MethodGet, "/api/health")
	req.Header.Set("X-Correlation-ID", "req-42")
	env.do(req, rec)
	assert.Equal(t, "req-42", rec.Header().Get("X-Correlation-ID"))
}

func TestServer_notFound(t *testing.T) {
	env := setup(t)
	env.runTests(t, []httpTest{
		{name: "unknown route", path: "/api/nope", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Not Found"})},
		{
			name: "unknown note", path: "/api/notes/cse/year1/section-a/networks/nope", wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "note not found: /cse/year1/section-a/networks/nope"}),
		},
	})
}

func TestServer_rateLimit(t *testing.T) {
	env := setup(t)
	env.Conf.Server.WriteRateLimit = 2
	env.Conf.Server.RateLimitBurst = 1
	server := newServer(env.App, env.catalog)

	login := []byte(`{"email": "nobody@example.com", "password": "x"}`)

	req, rec := newRequest(http.MethodPost, "/api/auth/login", login)
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newRequest(http.MethodPost, "/api/auth/login", login)
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	// reads have their own quota
	req, rec = newRequest(http.MethodGet, "/api/health")
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
