package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/club-lending/pkg/auth"
	md "github.com/Astemirdum/club-lending/pkg/middleware"
)

func whoami(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return c.String(http.StatusOK, "anonymous")
	}
	return c.String(http.StatusOK, id.Kind+":"+id.ID+":"+id.DepartmentID)
}

func TestAuthContext(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.GET("/", whoami, md.AuthContext)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "no headers", want: "anonymous"},
		{
			name:    "faculty",
			headers: map[string]string{auth.XActorKindHeader: "faculty", auth.XActorIDHeader: "f-7", auth.XActorDepartmentHeader: "cse"},
			want:    "faculty:f-7:cse",
		},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		for k, v := range tt.headers {
			r.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code, tt.name)
		require.Equal(t, tt.want, w.Body.String(), tt.name)
	}
}

func TestJwtAuthentication(t *testing.T) {
	t.Parallel()
	secret := []byte("s3cr3t")
	e := echo.New()
	e.GET("/", whoami, md.JwtAuthentication(secret))

	token, err := auth.NewToken(secret, auth.Identity{Kind: "student", ID: "1MS21CS001"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantCode      int
		want          string
	}{
		{name: "no header", wantCode: http.StatusOK, want: "anonymous"},
		{name: "ok", authorization: "Bearer " + token, wantCode: http.StatusOK, want: "student:1MS21CS001:"},
		{name: "not bearer", authorization: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "bad token", authorization: "Bearer abc", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		if tt.authorization != "" {
			r.Header.Set(md.AuthorizationHeader, tt.authorization)
		}
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		require.Equal(t, tt.wantCode, w.Code, tt.name)
		if tt.want != "" {
			require.Equal(t, tt.want, w.Body.String(), tt.name)
		}
	}
}
