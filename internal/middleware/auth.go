// Package middleware содержит HTTP middleware сервиса truthstake: сессию на
// подписанном cookie, сжатие gzip и журнал запросов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sessionCookieName = "truthstake_session"
	// DefaultSessionTTL используется, если срок жизни сессии не задан.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

var (
	errMalformedToken = errors.New("malformed session token")
	errBadSignature   = errors.New("bad session signature")
	errExpiredToken   = errors.New("session expired")
)

type userIDKey struct{}

// Auth выдаёт и проверяет сессии. Значение cookie имеет вид
// "<userID>.<expiresUnix>.<hmac>"; срок действия проверяется на сервере,
// а не только браузером.
type Auth struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewAuth создаёт проверку сессий. Пустой secret заменяется случайным ключом:
// сессии тогда не переживают перезапуск процесса.
func NewAuth(secret string, ttl time.Duration, logger *zap.Logger) *Auth {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Auth{
		key:    key,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Middleware пропускает запрос дальше только с действующей сессией и кладёт
// идентификатор пользователя в контекст.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, err := a.parse(cookie.Value)
		if err != nil {
			a.logger.Debug("session rejected", zap.String("uri", r.RequestURI), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// SetCookie открывает сессию пользователя.
func (a *Auth) SetCookie(w http.ResponseWriter, userID int64) {
	expires := a.now().Add(a.ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.token(userID, expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie закрывает сессию на стороне клиента.
func (a *Auth) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Auth) token(userID int64, expires time.Time) string {
	payload := strconv.FormatInt(userID, 10) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.signature(payload)
}

func (a *Auth) signature(payload string) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Auth) parse(value string) (int64, error) {
	i := strings.LastIndexByte(value, '.')
	if i < 0 {
		return 0, errMalformedToken
	}
	payload, sig := value[:i], value[i+1:]

	if !hmac.Equal([]byte(sig), []byte(a.signature(payload))) {
		return 0, errBadSignature
	}

	idStr, expStr, ok := strings.Cut(payload, ".")
	if !ok {
		return 0, errMalformedToken
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, errMalformedToken
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return 0, errMalformedToken
	}
	if !a.now().Before(time.Unix(exp, 0)) {
		return 0, errExpiredToken
	}

	return id, nil
}

// WithUserID возвращает контекст с аутентифицированным пользователем.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom извлекает идентификатор пользователя из контекста запроса.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok
}
