// Package identity resolves the caller behind each request: an authenticated
// principal asserted by a trusted upstream, or an anonymous device.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

const (
	AnonCookieName   = "agentdesk_device_id"
	anonCookieMaxAge = 30 * 24 * time.Hour
	lastSeenInterval = time.Minute
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	authenticatedKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	principalPattern = regexp.MustCompile(`^[A-Za-z0-9._@+:-]{1,128}$`)
)

// Users is the persistence identity needs.
type Users interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// Options configures the middleware.
type Options struct {
	// Header carries the authenticated principal set by a trusted upstream.
	Header string
	IsDev  bool
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// IsAuthenticatedFromContext reports whether the caller was authenticated upstream.
func IsAuthenticatedFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(authenticatedKey).(bool)
	return v
}

// WithIdentity returns a context carrying the given caller.
func WithIdentity(ctx context.Context, userID string, authenticated bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, usernameKey, deriveUsername(userID, authenticated))
	return context.WithValue(ctx, authenticatedKey, authenticated)
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveUsername(userID string, authenticated bool) string {
	if authenticated {
		return userID
	}
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

func principalFromRequest(r *http.Request, header string) (string, bool) {
	p := strings.TrimSpace(r.Header.Get(header))
	if p == "" || !principalPattern.MatchString(p) {
		return "", false
	}
	return p, true
}

func ensureUser(ctx context.Context, repo Users, userID string, authenticated bool) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user != nil && (user.Authenticated || !authenticated) {
		if user.IdleFor(now) < lastSeenInterval {
			return nil
		}
		return repo.UpdateLastSeen(ctx, userID, now)
	}

	created := now
	if user != nil {
		created = user.CreatedAt
	}
	return repo.UpsertUser(ctx, &domain.User{
		UserID:        userID,
		Username:      deriveUsername(userID, authenticated),
		Authenticated: authenticated,
		LastSeenAt:    now,
		CreatedAt:     created,
		UpdatedAt:     now,
	})
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware resolves the caller and stores it in the request context.
// A valid principal header wins; otherwise the device cookie identifies an anonymous caller.
func Middleware(repo Users, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, authenticated := principalFromRequest(r, opts.Header)
			if !authenticated {
				var err error
				userID, err = getOrCreateAnonID(w, r, opts.IsDev)
				if err != nil {
					http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
					return
				}
			}

			if err := ensureUser(r.Context(), repo, userID, authenticated); err != nil {
				slog.Error("Failed to initialize user", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, authenticated)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
