// Package gatekeeper is the edge middleware that enforces the session
// lifecycle on every request: anonymous visitors stay on public routes,
// accounts under a forced reset are pinned to the set-password step,
// deactivated accounts are parked on the inactive notice, and the admin
// area requires an active admin session.
package gatekeeper

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-router"

	"github.com/deceasedstatus/platform"
)

// Config wires the gatekeeper to the session plumbing.
type Config struct {
	// Filter skips the middleware entirely when it returns true.
	Filter func(router.Context) bool

	Sessions *platform.SessionManager
	Cookies  *platform.CookieManager
	Logger   platform.Logger

	// PublicRoutes are exact paths reachable without a session, on top of
	// the built-in set.
	PublicRoutes []string

	// PublicPrefixes are path prefixes reachable without a session, on top
	// of the built-in set.
	PublicPrefixes []string
}

var defaultPublicRoutes = []string{
	"/",
	"/login",
	"/forgot-password",
	"/request-account",
	"/inactive",
	"/api/auth/login",
	"/api/auth/forgot-password",
	"/api/account-request",
}

var defaultPublicPrefixes = []string{
	"/static/",
	"/assets/",
	"/favicon",
}

// Paths reachable while a forced reset is pending. Everything else
// redirects to the set-password step until the flag clears.
var resetAllowedRoutes = []string{
	"/set-password",
	"/logout",
	"/api/auth/set-password",
	"/api/auth/logout",
	"/api/auth/validate",
}

// Paths reachable by a deactivated account.
var inactiveAllowedRoutes = []string{
	"/inactive",
	"/logout",
	"/api/auth/logout",
	"/api/auth/validate",
}

// New builds the middleware. Decisions follow a strict order: resolve the
// session, then forced reset, then active status, then role. The cookie is
// only cleared on definitive auth failures; a store hiccup must never sign
// everyone out.
func New(cfg Config) router.MiddlewareFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = platform.NewDefaultLogger()
	}

	publicRoutes := append(append([]string{}, defaultPublicRoutes...), cfg.PublicRoutes...)
	publicPrefixes := append(append([]string{}, defaultPublicPrefixes...), cfg.PublicPrefixes...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			path := ctx.Path()

			raw := cfg.Cookies.Read(ctx)
			if raw == "" {
				return handleAnonymous(ctx, cfg, path, publicRoutes, publicPrefixes)
			}

			session, err := cfg.Sessions.Validate(ctx.Context(), raw)
			if err != nil {
				if platform.IsAuthError(err) {
					cfg.Cookies.Clear(ctx)
					return handleAnonymous(ctx, cfg, path, publicRoutes, publicPrefixes)
				}

				// Transient fault. Let the request through rather than lock
				// the whole site behind a flaky store.
				logger.Warn("session validation transient failure", "path", path, "error", err)
				return ctx.Next()
			}

			return handleAuthenticated(ctx, cfg, session, path)
		}
	}
}

func handleAnonymous(ctx router.Context, cfg Config, path string, routes, prefixes []string) error {
	if isPublicPath(path, routes, prefixes) {
		return ctx.Next()
	}

	if isAPIPath(path) {
		return ctx.JSON(http.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	cfg.Cookies.SetRedirect(ctx)
	return ctx.Redirect("/login", redirectStatus(ctx))
}

func handleAuthenticated(ctx router.Context, cfg Config, session *platform.Session, path string) error {
	// Sliding window: every authenticated request rewrites the cookie with
	// a full lifetime.
	if token, err := cfg.Sessions.Renew(session); err == nil {
		cfg.Cookies.Write(ctx, token)
	}

	ctx.Locals(platform.SessionLocalsKey, session)
	ctx.SetContext(platform.WithSession(ctx.Context(), session))

	if path == "/login" {
		return ctx.Redirect(session.HomePath(), redirectStatus(ctx))
	}

	if session.MustReset() && !pathIn(path, resetAllowedRoutes) {
		if isAPIPath(path) {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"error": "password reset required",
				"code":  "PASSWORD_RESET_REQUIRED",
			})
		}
		return ctx.Redirect("/set-password", redirectStatus(ctx))
	}

	if !session.IsActive() && !pathIn(path, inactiveAllowedRoutes) {
		if isAPIPath(path) {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"error": "account is not active",
				"code":  "ACCOUNT_INACTIVE",
			})
		}
		return ctx.Redirect("/inactive", redirectStatus(ctx))
	}

	if isAdminPath(path) && !session.IsAdmin() {
		if isAPIPath(path) {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"error": "admin access required",
				"code":  "ADMIN_REQUIRED",
			})
		}
		return ctx.Redirect("/app", redirectStatus(ctx))
	}

	return ctx.Next()
}

func isPublicPath(path string, routes, prefixes []string) bool {
	if pathIn(path, routes) {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func isAdminPath(path string) bool {
	return path == "/admin" ||
		strings.HasPrefix(path, "/admin/") ||
		strings.HasPrefix(path, "/api/admin/")
}

func pathIn(path string, routes []string) bool {
	for _, route := range routes {
		if path == route {
			return true
		}
	}
	return false
}

// Browsers expect 302 for GET navigations; non idempotent methods get 303
// so the follow-up is a GET.
func redirectStatus(ctx router.Context) int {
	if ctx.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
