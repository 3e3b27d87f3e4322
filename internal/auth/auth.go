// Package auth guards the dashboard feeds with HTTP Basic credentials and
// carries the authenticated principal in the request context.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Principal is the authenticated dashboard user
type Principal struct {
	Username string
}

type contextKey struct{}

// WithPrincipal returns a context carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext reports whether the request was authenticated, and as whom
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Authenticator checks a single dashboard account
type Authenticator struct {
	username     string
	passwordHash []byte
	logger       *zap.Logger
}

// NewAuthenticator creates an authenticator. A bcrypt hash takes precedence;
// otherwise the plain password is hashed once at startup.
func NewAuthenticator(username, password, passwordHash string, logger *zap.Logger) (*Authenticator, error) {
	hash := []byte(passwordHash)
	if len(hash) == 0 {
		if password == "" {
			return nil, fmt.Errorf("dashboard password is not configured")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash dashboard password: %w", err)
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("invalid dashboard password hash: %w", err)
	}

	return &Authenticator{
		username:     username,
		passwordHash: hash,
		logger:       logger,
	}, nil
}

// Verify checks a username and password pair
func (a *Authenticator) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// Middleware rejects requests without valid credentials and attaches the
// principal to the context of the rest
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.Verify(username, password) {
			if ok {
				a.logger.Warn("invalid dashboard credentials",
					zap.String("username", username),
					zap.String("remote_addr", r.RemoteAddr))
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="helmet-dashboard"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{Username: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
