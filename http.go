package platform

import (
	"time"

	"github.com/goliatone/go-router"
)

// SessionCookieName is the cookie the edge reads on every request.
const SessionCookieName = "user-id"

// RejectedRouteCookie remembers the path a signed-out visitor was heading
// to, so login can send them back afterwards.
const RejectedRouteCookie = "rejected-route"

// CookieManager owns the session cookie contract: one cookie, site wide,
// Lax, renewed with a full lifetime on every authenticated request.
type CookieManager struct {
	name     string
	duration time.Duration
	secure   bool
	logger   Logger
}

type CookieOption func(*CookieManager)

func WithCookieName(name string) CookieOption {
	return func(m *CookieManager) {
		if name != "" {
			m.name = name
		}
	}
}

func WithCookieDuration(d time.Duration) CookieOption {
	return func(m *CookieManager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithCookieSecure controls the Secure attribute; disable it only for local
// plain-HTTP development.
func WithCookieSecure(secure bool) CookieOption {
	return func(m *CookieManager) {
		m.secure = secure
	}
}

func WithCookieLogger(l Logger) CookieOption {
	return func(m *CookieManager) {
		m.logger = normalizeLogger(l)
	}
}

func NewCookieManager(opts ...CookieOption) *CookieManager {
	m := &CookieManager{
		name:     SessionCookieName,
		duration: DefaultSessionTTL,
		secure:   true,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *CookieManager) Name() string {
	return m.name
}

func (m *CookieManager) Duration() time.Duration {
	return m.duration
}

// Read returns the raw session token, empty when absent.
func (m *CookieManager) Read(ctx router.Context) string {
	return ctx.Cookies(m.name)
}

// Write sets the session cookie with a full lifetime.
func (m *CookieManager) Write(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     m.name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(m.duration),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: "Lax",
	})
}

// Clear evicts the session cookie. Only definitive auth failures call this;
// transient validation errors must leave the cookie in place.
func (m *CookieManager) Clear(ctx router.Context) {
	m.cookieDel(ctx, m.name)
}

// SetRedirect remembers the rejected path for five minutes so the login
// flow can resume it.
func (m *CookieManager) SetRedirect(ctx router.Context) {
	m.logger.Info("Setting redirect cookie", "key", RejectedRouteCookie, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     RejectedRouteCookie,
		Value:    ctx.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: "Lax",
	})
}

// GetRedirect pops the remembered path, falling back to def.
func (m *CookieManager) GetRedirect(ctx router.Context, def string) string {
	r := ctx.Cookies(RejectedRouteCookie)
	if r == "" {
		return def
	}
	m.cookieDel(ctx, RejectedRouteCookie)
	return r
}

func (m *CookieManager) cookieDel(ctx router.Context, name string) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: "Lax",
	})
}
