package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuth(secret string, now time.Time) *Auth {
	a := NewAuth(secret, time.Hour, zap.NewNop())
	a.now = func() time.Time { return now }
	return a
}

func sessionCookie(t *testing.T, a *Auth, userID int64) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	a.SetCookie(w, userID)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestAuth_ValidSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := newTestAuth("test-secret", now)

	cookie := sessionCookie(t, a, 42)
	assert.Equal(t, sessionCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)

	var got int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFrom(r.Context())
		require.True(t, ok)
		got = id
	})

	r := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), got)
}

func TestAuth_RejectsSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := newTestAuth("test-secret", now)
	other := newTestAuth("other-secret", now)

	valid := a.token(42, now.Add(time.Hour))

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "empty", cookie: &http.Cookie{Name: sessionCookieName, Value: ""}},
		{name: "no signature", cookie: &http.Cookie{Name: sessionCookieName, Value: "42"}},
		{name: "foreign signature", cookie: &http.Cookie{Name: sessionCookieName, Value: other.token(42, now.Add(time.Hour))}},
		{name: "swapped id", cookie: &http.Cookie{Name: sessionCookieName, Value: "43" + valid[2:]}},
		{name: "expired", cookie: &http.Cookie{Name: sessionCookieName, Value: a.token(42, now.Add(-time.Second))}},
		{name: "non-positive id", cookie: &http.Cookie{Name: sessionCookieName, Value: a.token(0, now.Add(time.Hour))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			a.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuth_SessionExpiresOnServer(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := newTestAuth("test-secret", start)
	cookie := sessionCookie(t, a, 7)

	a.now = func() time.Time { return start.Add(2 * time.Hour) }

	r := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	a.Middleware(http.NotFoundHandler()).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ClearCookie(t *testing.T) {
	a := NewAuth("", 0, zap.NewNop())
	assert.Len(t, a.key, 32)
	assert.Equal(t, DefaultSessionTTL, a.ttl)

	w := httptest.NewRecorder()
	a.ClearCookie(w)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
