package auth

import (
	"context"
	"net/http"

	"github.com/sakif/teamrally/internal/model"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the value.
type contextKey string

const userKey contextKey = "user"

// ErrorWriter renders an authentication failure. The handler package
// supplies one so auth errors share the API's JSON error shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth is a middleware that enforces bearer authentication.
//
// It passes the Authorization header to gate.Authenticate. On success the
// resolved user is stored in the request context; on failure writeErr
// renders the error and the chain stops.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(gate *Gate, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
//
// Returns (nil, false) outside a RequireAuth-protected route.
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // not behind RequireAuth
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
