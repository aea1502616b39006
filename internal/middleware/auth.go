package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/scanbridge/relay-server-go/internal/util"
)

type contextKey string

const ActorContextKey contextKey = "actor"

// GetActor returns the caller identity, or nil for anonymous requests.
func GetActor(ctx context.Context) *string {
	if actor, ok := ctx.Value(ActorContextKey).(string); ok && actor != "" {
		return &actor
	}
	return nil
}

// Identity resolves an optional bearer token into an actor identity (the
// token's SHA-256). Requests without a token proceed anonymously; ownership
// checks happen in the services, since owner-less sessions accept any caller.
type Identity struct{}

func NewIdentityMiddleware() *Identity {
	return &Identity{}
}

func (m *Identity) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor := util.HashToken(token)
		ctx := context.WithValue(r.Context(), ActorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket clients cannot always set headers; allow a query token.
	return r.URL.Query().Get("token")
}
