package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// DefaultSessionCookie names the browsing-context cookie.
const DefaultSessionCookie = "flexishop_sid"

// SessionIDKey is the context key for the browsing-context id.
const SessionIDKey contextKey = "session_id"

// maxSessionIDLength bounds ids accepted from the client.
const maxSessionIDLength = 64

// SessionOptions configures the browsing-context cookie.
type SessionOptions struct {
	CookieName string
	Secure     bool
	MaxAge     int
}

// BrowsingContext assigns every visitor a stable id kept in a cookie. Cart
// and signed-in user slots are keyed by it, so two browsers never share state.
func BrowsingContext(opts SessionOptions) Middleware {
	name := opts.CookieName
	if name == "" {
		name = DefaultSessionCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(name); err == nil && validSessionID(c.Value) {
				sid = c.Value
			}

			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    sid,
					Path:     "/",
					MaxAge:   opts.MaxAge,
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionID returns the browsing-context id, or "" outside BrowsingContext.
func SessionID(ctx context.Context) string {
	sid, _ := ctx.Value(SessionIDKey).(string)
	return sid
}

// WithSessionID stores sid in ctx.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sid)
}

func validSessionID(v string) bool {
	if v == "" || len(v) > maxSessionIDLength {
		return false
	}
	for _, c := range v {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
