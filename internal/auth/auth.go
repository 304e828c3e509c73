package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyActor ctxKey = "badgetrack.actor"

// Actor is the authenticated caller: a stable id plus the admin flag the
// authorization collaborator derived for this request.
type Actor struct {
	ID    string
	Admin bool
}

// FromContext returns the Actor stored in the request context.
func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKeyActor).(Actor)
	return actor, ok
}

// WithActor returns a context carrying the actor. Exposed for tests.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// ParseToken validates an HS256 bearer token and extracts the actor from its
// sub and admin claims.
func ParseToken(tokenStr string, secret []byte) (Actor, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Actor{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Actor{}, fmt.Errorf("token missing sub claim")
	}
	actor := Actor{ID: sub}
	if admin, ok := claims["admin"].(bool); ok {
		actor.Admin = admin
	}
	return actor, nil
}

// Middleware authenticates every request. It accepts an HS256 bearer token
// carrying sub/admin claims; when allowDebugActor is set (local development
// only) an X-Debug-Actor header names the actor directly and X-Debug-Admin
// grants the admin flag.
func Middleware(secret []byte, allowDebugActor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowDebugActor {
				if id := r.Header.Get("X-Debug-Actor"); id != "" {
					actor := Actor{ID: id, Admin: r.Header.Get("X-Debug-Admin") == "true"}
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				unauthorized(w, "bearer token required")
				return
			}
			actor, err := ParseToken(strings.TrimSpace(authz[7:]), secret)
			if err != nil {
				log.Printf("[auth] token rejected: %v", err)
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":"unauthorized","message":%q}`, msg)
}
