// ABOUTME: Tests for admin login, logout, and the RequireAdmin middleware
// ABOUTME: Covers form and JSON logins, cookie handling, and bearer tokens

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	creds, err := NewCredentials("admin", string(hash))
	require.NoError(t, err)

	return NewService(creds, newTestVerifier(t), time.Hour, false, nil)
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == TokenCookieName {
			return c
		}
	}
	t.Fatal("token cookie not set")
	return nil
}

func TestHandleLogin_Form(t *testing.T) {
	svc := newTestService(t)

	form := url.Values{"username": {"admin"}, "password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.HandleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := tokenCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, cookie.Value, resp.Token)
}

func TestHandleLogin_JSON(t *testing.T) {
	svc := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(`{"username":"admin","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	svc.HandleLogin(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	tokenCookie(t, rec)
}

func TestHandleLogin_Rejected(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"wrong username", `{"username":"root","password":"hunter2"}`, http.StatusUnauthorized},
		{"missing fields", `{"username":"admin"}`, http.StatusBadRequest},
		{"bad json", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			svc.HandleLogin(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestHandleLogin_MethodNotAllowed(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	svc.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/admin/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()

	svc.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/admin/logout", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookie := tokenCookie(t, rec)
	assert.Equal(t, "", cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestRequireAdmin(t *testing.T) {
	svc := newTestService(t)
	token, err := svc.verifier.Generate("admin", time.Hour)
	require.NoError(t, err)

	var gotUser string
	protected := svc.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = FromContext(r.Context()).Username
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("cookie", func(t *testing.T) {
		gotUser = ""
		req := httptest.NewRequest(http.MethodGet, "/admin/contacts", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin", gotUser)
	})

	t.Run("bearer", func(t *testing.T) {
		gotUser = ""
		req := httptest.NewRequest(http.MethodGet, "/admin/contacts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin", gotUser)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/contacts", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/contacts", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token + "x"})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, FromContext(req.Context()))
}
