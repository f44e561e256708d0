package auth

import (
	"context"
	"net/http"
)

// Cookie names. Student and moderator sessions never share a cookie, so a
// moderator can be signed in as a student in the same browser.
const (
	UserCookie  = "token"
	AdminCookie = "admin_token"
)

// contextKey is unexported so only this package can set or read the values.
type contextKey string

const (
	userIDKey contextKey = "userID"
	adminKey  contextKey = "admin"
)

const unauthorizedBody = `{"error":"unauthenticated","message":"authentication required"}`

// RequireAuth rejects requests without a valid user session with 401 and
// stores the user ID in the context otherwise.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := identityFromCookie(r, tokens, UserCookie, RoleUser)
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user ID when a valid session is present and
// lets anonymous requests through untouched. The exam detail page uses it to
// fill in the viewer's saved/flashed state.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := identityFromCookie(r, tokens, UserCookie, RoleUser); ok {
				r = r.WithContext(withUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards the moderation routes. Only an admin-role token in the
// admin cookie passes.
func RequireAdmin(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := identityFromCookie(r, tokens, AdminCookie, RoleAdmin)
			if !ok {
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), adminKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// AdminFromContext returns the moderator username set by RequireAdmin.
func AdminFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(adminKey).(string)
	return name, ok && name != ""
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// ContextWithUserID returns ctx carrying userID as if RequireAuth had run.
// Handler tests use it to skip the cookie round trip.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return withUserID(ctx, userID)
}

func identityFromCookie(r *http.Request, tokens *TokenService, cookie string, role Role) (string, bool) {
	c, err := r.Cookie(cookie)
	if err != nil {
		return "", false
	}
	id, err := tokens.Validate(c.Value)
	if err != nil || id.Role != role {
		return "", false
	}
	return id.Subject, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(unauthorizedBody))
}
