package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vyrodovalexey/flexishop/internal/middleware"
)

func captureSession(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = middleware.SessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestBrowsingContext_IssuesCookie(t *testing.T) {
	t.Parallel()

	// Arrange
	var sid string
	handler := middleware.BrowsingContext(middleware.SessionOptions{Secure: true})(captureSession(&sid))
	rr := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	// Assert
	if sid == "" {
		t.Fatal("SessionID() is empty")
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != middleware.DefaultSessionCookie || c.Value != sid {
		t.Errorf("cookie = %s=%s, want %s=%s", c.Name, c.Value, middleware.DefaultSessionCookie, sid)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = %+v", c)
	}
}

func TestBrowsingContext_ReusesCookie(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		wantKeep bool
	}{
		{name: "uuid", value: "0b6f2c1e-8e0a-4c3e-9b59-3d1f7e0f8a11", wantKeep: true},
		{name: "short token", value: "abc_123", wantKeep: true},
		{name: "illegal characters", value: "abc;def", wantKeep: false},
		{name: "too long", value: strings.Repeat("a", 65), wantKeep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			var sid string
			handler := middleware.BrowsingContext(middleware.SessionOptions{CookieName: "sid"})(captureSession(&sid))
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			req.AddCookie(&http.Cookie{Name: "sid", Value: tt.value})
			rr := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rr, req)

			// Assert
			if (sid == tt.value) != tt.wantKeep {
				t.Errorf("SessionID() = %q, keep = %v, want keep %v", sid, sid == tt.value, tt.wantKeep)
			}
			issued := len(rr.Result().Cookies()) > 0
			if issued == tt.wantKeep {
				t.Errorf("cookie issued = %v, want %v", issued, !tt.wantKeep)
			}
		})
	}
}

func TestBrowsingContext_DistinctVisitors(t *testing.T) {
	t.Parallel()

	// Arrange
	var first, second string
	mw := middleware.BrowsingContext(middleware.SessionOptions{})

	// Act
	mw(captureSession(&first)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	mw(captureSession(&second)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	// Assert
	if first == second {
		t.Errorf("two visitors share session id %q", first)
	}
}

func TestSessionID_Empty(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := middleware.SessionID(req.Context()); got != "" {
		t.Errorf("SessionID() = %q, want empty", got)
	}
	ctx := middleware.WithSessionID(req.Context(), "abc")
	if got := middleware.SessionID(ctx); got != "abc" {
		t.Errorf("SessionID() = %q, want abc", got)
	}
}
