package middleware

import (
	"context"
	"net/http"
	"strings"

	castellan "github.com/castellan-dev/castellan"
)

type sessionContextKey struct{}

// FromContext returns the AuthSession the Loader attached to the
// request, if any.
func FromContext(ctx context.Context) (*castellan.AuthSession, bool) {
	as, ok := ctx.Value(sessionContextKey{}).(*castellan.AuthSession)
	return as, ok
}

// Loader returns middleware that resolves the request's AuthSession:
// it reads the session-ID cookie (minting one when absent), attempts
// Load from the server-side session and the remember-me cookie, and
// places the AuthSession in the request context. Handlers that change
// auth state must call WriteCookies before writing the body.
func Loader(engine *castellan.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			cfg := engine.Config()
			secure := isSecureRequest(r)

			sid := cookieValue(r, cfg.Session.IDCookieName)
			minted := false
			if sid == "" {
				sid = engine.NewSessionID()
				minted = true
			}

			as := engine.Session(sid, castellan.SecureTransport(secure))
			as.Load(r.Context(), cookieValue(r, cfg.Cookie.KeyName))

			if minted || as.SID() != sid {
				http.SetCookie(w, sidCookie(cfg, as.SID(), secure))
			}
			// Load can queue cookies of its own: a renewed remember-me
			// cookie on promotion, or deletion of a rejected one.
			for _, c := range as.PendingCookies() {
				http.SetCookie(w, c)
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, as)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission returns middleware rejecting requests whose session
// lacks all of the comma-separated permissions. Must run inside Loader.
func RequirePermission(permissions string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			as, ok := FromContext(r.Context())
			if !ok || !as.IsLoggedIn() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !as.HasPermission(permissions) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteCookies flushes the AuthSession's pending cookies and, when the
// session identifier rotated, the refreshed session-ID cookie. Call it
// after Login/Logout and before writing the response body.
func WriteCookies(w http.ResponseWriter, r *http.Request, engine *castellan.Engine, as *castellan.AuthSession) {
	cfg := engine.Config()
	secure := isSecureRequest(r)

	if cookieValue(r, cfg.Session.IDCookieName) != as.SID() {
		http.SetCookie(w, sidCookie(cfg, as.SID(), secure))
	}
	for _, c := range as.PendingCookies() {
		http.SetCookie(w, c)
	}
}

func sidCookie(cfg castellan.Config, sid string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Session.IDCookieName,
		Value:    sid,
		Path:     cfg.Cookie.Path,
		MaxAge:   int(cfg.Session.Lifetime.Seconds()),
		Secure:   secure || cfg.Cookie.ForceSecure,
		HttpOnly: true,
		SameSite: cfg.Cookie.SameSite,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https")
}
