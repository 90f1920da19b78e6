package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/user"
)

func Test_getContextClaims(t *testing.T) {
	conf := core.NewTestConfig()
	a := newAuth(conf, nil)
	usr := user.User{PublicID: "u-1", Name: "Ada", Email: "ada@example.com", Role: user.RoleTeacher}

	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	require.NoError(t, err)

	var (
		got    Claims
		gotErr error
	)
	app := echo.New()
	app.GET("/", func(ctx echo.Context) error {
		got, gotErr = getContextClaims(ctx)
		return ctx.NoContent(http.StatusNoContent)
	}, middleware.JWTWithConfig(a.jwtConfig))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, gotErr)
	assert.Equal(t, usr.PublicID, got.Subject)
	assert.Equal(t, usr.Email, got.Email)
	assert.Equal(t, usr.Role, got.Role)

	t.Run("no token in context", func(t *testing.T) {
		ctx := app.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		_, err := getContextClaims(ctx)
		assert.Equal(t, errUnauthorized, err)
	})
}
