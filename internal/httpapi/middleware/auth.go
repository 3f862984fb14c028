package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Role is the access level a route demands.
type Role string

const (
	// RoleViewer may read job state. Viewer and operator keys both qualify.
	RoleViewer Role = "viewer"
	// RoleOperator may trigger sweeps by hand. Only operator keys qualify.
	RoleOperator Role = "operator"
)

// Auth holds the API keys accepted by the job routes. With no keys for a
// role, routes demanding that role are open; the serve command warns
// about it at startup.
type Auth struct {
	Viewer   []string
	Operator []string
	Logger   *zap.Logger
}

// presentedKey reads the key from "Authorization: Bearer" or X-API-Key.
func presentedKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// matchKey compares given against every configured key in constant time
// and without stopping at the first hit.
func matchKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	var found int
	for _, k := range set {
		found |= subtle.ConstantTimeCompare([]byte(given), []byte(k))
	}
	return found == 1
}

// Require guards a route with role. A request without a key, or with an
// unknown one, gets 401; a viewer key on an operator route gets 403.
func (a Auth) Require(role Role) func(http.Handler) http.Handler {
	allowed := a.Operator
	if role == RoleViewer {
		allowed = append(append([]string{}, a.Viewer...), a.Operator...)
	}
	log := a.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := presentedKey(r)
			if matchKey(key, allowed) {
				next.ServeHTTP(w, r)
				return
			}

			status, reason := http.StatusUnauthorized, "invalid_key"
			switch {
			case key == "":
				reason = "missing_key"
			case matchKey(key, a.Viewer):
				status, reason = http.StatusForbidden, "insufficient_role"
			}
			log.Warn("auth_denied",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", routePattern(r)),
				zap.String("required_role", string(role)),
				zap.String("reason", reason),
				zap.String("remote_ip", clientIP(r)),
			)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status == http.StatusForbidden {
				_, _ = w.Write([]byte(`{"error":"forbidden"}`))
				return
			}
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
