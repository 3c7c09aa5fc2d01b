package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// Headers set by the API gateway after it has authenticated the caller.
const (
	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"
	ShopIDHeader = "X-Shop-ID"
)

// Identity describes the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   string
	ShopID string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity stored by Identify.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// UserIDFromContext extracts the user ID set by Identify.
func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

// Identify reads the gateway identity headers into the request context. When
// X-User-ID is absent the request is passed through unchanged; handlers that
// need a caller use RequireUser.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		id := Identity{
			UserID: userID,
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader))),
			ShopID: strings.TrimSpace(r.Header.Get(ShopIDHeader)),
		}
		ctx := WithIdentity(r.Context(), id)
		ctx = logger.WithUserID(ctx, id.UserID)
		if id.Role != "" {
			ctx = logger.WithRole(ctx, id.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without a caller identity with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "UNAUTHORIZED",
					Message: "missing " + UserIDHeader + " header",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
