package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/awe-academy/core/user"
	"github.com/trezcool/awe-academy/tests"
)

func TestUserAPI_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Gone User", "gone", "gone@awe.test", testPassword, user.RoleFinanceOfficer, false)

	tests := []httpTest{
		{
			name:     "missing credentials",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echo.Map{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "unknown username",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "nobody", Password: testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "admin", Password: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "gone", Password: testPassword}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("username is case insensitive", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: " ADMIN ", Password: testPassword})
		rec := app.do(http.MethodPost, "/v1/users/login", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res LoginResponse
		unmarchall(t, rec, &res)
		assert.NotEmpty(t, res.Token)

		// the token opens the authed endpoints
		rec = app.do(http.MethodGet, "/v1/users/roles", res.Token)
		assert.Equal(t, http.StatusOK, rec.Code)

		usr, err := app.usrRepo.GetUserByID(context.Background(), app.admin.ID)
		assert.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero(), "last login should be recorded")
	})
}

func TestUserAPI_refreshToken(t *testing.T) {
	app := setup(t)
	gone := testutil.CreateUser(t, app.usrRepo, "Gone User", "gone", "gone@awe.test", testPassword, user.RoleFinanceOfficer, false)

	old := time.Now().Add(-2 * app.conf.Server.JWTRefreshExpirationDelta).Unix()
	expired, err := GenerateToken(app.conf, GetUserClaims(app.conf, app.finance, old))
	assert.NoError(t, err)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "deactivated account",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    app.token(t, gone),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "refresh expired",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    expired,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("ok", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/token-refresh", app.token(t, app.finance))
		assert.Equal(t, http.StatusOK, rec.Code)
		var res LoginResponse
		unmarchall(t, rec, &res)
		assert.NotEmpty(t, res.Token)
	})
}

func TestUserAPI_permissions(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{
			name:     "query by non admin",
			path:     "/v1/users",
			token:    app.token(t, app.finance),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "query by admin",
			path:     "/v1/users?ordering=id",
			token:    app.token(t, app.admin),
			wantData: marchallObj(t, []user.User{app.admin, app.finance, app.supplier, app.registrar}),
		},
		{
			name:     "query by role",
			path:     "/v1/users?role=" + user.RoleSupplyOfficer,
			token:    app.token(t, app.admin),
			wantData: marchallObj(t, []user.User{app.supplier}),
		},
		{
			name:     "retrieve self",
			path:     "/v1/users/" + itoa(app.finance.ID),
			token:    app.token(t, app.finance),
			wantData: marchallObj(t, app.finance),
		},
		{
			name:     "retrieve someone else",
			path:     "/v1/users/" + itoa(app.supplier.ID),
			token:    app.token(t, app.finance),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "retrieve malformed id",
			path:     "/v1/users/abc",
			token:    app.token(t, app.admin),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "non admin changes own role",
			method:   http.MethodPut,
			path:     "/v1/users/" + itoa(app.finance.ID),
			body:     []byte(`{"name":"Frank","username":"finance","email":"finance@awe.test","role":"admin"}`),
			token:    app.token(t, app.finance),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "admin deactivates self",
			method:   http.MethodPut,
			path:     "/v1/users/" + itoa(app.admin.ID),
			body:     []byte(`{"name":"Grace","username":"admin","email":"admin@awe.test","is_active":false}`),
			token:    app.token(t, app.admin),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "roles",
			path:     "/v1/users/roles",
			token:    app.token(t, app.supplier),
			wantData: marchallObj(t, user.Roles),
		},
	}
	runHTTPTests(t, app, tests)
}

func TestUserAPI_create(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.admin)

	t.Run("invalid", func(t *testing.T) {
		body := []byte(`{"name":"New","username":"admin","email":"bad","role":"janitor","password":"x","password_confirm":"y"}`)
		rec := app.do(http.MethodPost, "/v1/users", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var res map[string]string
		unmarchall(t, rec, &res)
		for _, fld := range []string{"email", "role", "password", "password_confirm"} {
			assert.Contains(t, res, fld)
		}
	})

	t.Run("ok", func(t *testing.T) {
		body := marchallObj(t, echo.Map{
			"name":             "Nina Officer",
			"username":         "nina",
			"email":            "nina@awe.test",
			"role":             user.RoleStudentOfficer,
			"password":         "Str0ng#Passw0rd",
			"password_confirm": "Str0ng#Passw0rd",
		})
		rec := app.do(http.MethodPost, "/v1/users", token, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var usr user.User
		unmarchall(t, rec, &usr)
		assert.Equal(t, "nina", usr.Username)
		assert.Equal(t, user.RoleStudentOfficer, usr.Role)
		assert.True(t, usr.IsActive)

		login := marchallObj(t, LoginRequest{Username: "nina", Password: "Str0ng#Passw0rd"})
		rec = app.do(http.MethodPost, "/v1/users/login", "", login)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
