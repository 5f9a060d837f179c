package platform_test

import (
	"net/http"
	"testing"
	"time"

	platform "github.com/deceasedstatus/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type controllerHarness struct {
	controller *platform.AuthController
	repo       *fakeRepo
	cookies    *platform.CookieManager
	sessions   *platform.SessionManager
}

func newControllerHarness(t *testing.T, seed ...*platform.User) *controllerHarness {
	t.Helper()

	repo := newFakeRepo(seed...)
	tokens := newTestTokens(time.Hour)
	sessions := platform.NewSessionManager(tokens, repo.users).WithLogger(testLogger{})
	cookies := platform.NewCookieManager(
		platform.WithCookieSecure(false),
		platform.WithCookieLogger(testLogger{}),
	)

	controller := platform.NewAuthController(
		platform.WithAuthControllerRepo(repo),
		platform.WithAuthControllerAuth(platform.NewAuthenticator(repo.users).WithLogger(testLogger{})),
		platform.WithAuthControllerSessions(sessions, cookies),
		platform.WithAuthControllerLogger(testLogger{}),
		platform.WithAuthControllerThrottle(platform.NewKeyedThrottle(rate.Limit(100), 100)),
	)

	return &controllerHarness{
		controller: controller,
		repo:       repo,
		cookies:    cookies,
		sessions:   sessions,
	}
}

func TestAPILogin(t *testing.T) {
	password := "Correct-Horse1!"

	t.Run("valid credentials set the session cookie", func(t *testing.T) {
		user := seedAccount(t, password)
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.body = []byte(`{"email":"pat@example.com","password":"Correct-Horse1!"}`)

		require.NoError(t, h.controller.APILogin(ctx))
		assert.Equal(t, http.StatusOK, ctx.jsonStatus)

		// The cookie it set must validate back to the same account.
		raw := ctx.Cookies(platform.SessionCookieName)
		require.NotEmpty(t, raw)
		session, err := h.sessions.Validate(ctx.Context(), raw)
		require.NoError(t, err)
		assert.Equal(t, user.ID, session.User.ID)
	})

	t.Run("bad credentials return 401 without a cookie", func(t *testing.T) {
		user := seedAccount(t, password)
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.body = []byte(`{"email":"pat@example.com","password":"wrong"}`)

		require.NoError(t, h.controller.APILogin(ctx))
		assert.Equal(t, http.StatusUnauthorized, ctx.jsonStatus)
		assert.Empty(t, ctx.setCookies)

		body, ok := ctx.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		h := newControllerHarness(t, seedAccount(t, password))

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.body = []byte(`{nope`)

		require.NoError(t, h.controller.APILogin(ctx))
		assert.Equal(t, http.StatusBadRequest, ctx.jsonStatus)
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		h := newControllerHarness(t, seedAccount(t, password))

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.body = []byte(`{"email":"not-an-email"}`)

		require.NoError(t, h.controller.APILogin(ctx))
		assert.Equal(t, http.StatusBadRequest, ctx.jsonStatus)

		body, ok := ctx.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.NotNil(t, body["validation"])
	})

	t.Run("inactive account is told so", func(t *testing.T) {
		user := seedAccount(t, password)
		user.IsActive = false
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.body = []byte(`{"email":"pat@example.com","password":"Correct-Horse1!"}`)

		require.NoError(t, h.controller.APILogin(ctx))
		assert.Equal(t, http.StatusForbidden, ctx.jsonStatus)

		body, ok := ctx.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ACCOUNT_INACTIVE", body["code"])
	})

	t.Run("throttled callers get a rate limit answer", func(t *testing.T) {
		user := seedAccount(t, password)
		repo := newFakeRepo(user)
		tokens := newTestTokens(time.Hour)
		sessions := platform.NewSessionManager(tokens, repo.users).WithLogger(testLogger{})
		cookies := platform.NewCookieManager(platform.WithCookieSecure(false))

		controller := platform.NewAuthController(
			platform.WithAuthControllerRepo(repo),
			platform.WithAuthControllerAuth(platform.NewAuthenticator(repo.users).WithLogger(testLogger{})),
			platform.WithAuthControllerSessions(sessions, cookies),
			platform.WithAuthControllerLogger(testLogger{}),
			platform.WithAuthControllerThrottle(platform.NewKeyedThrottle(rate.Limit(0.001), 1)),
		)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.headers["X-Forwarded-For"] = "203.0.113.9"
		ctx.body = []byte(`{"email":"pat@example.com","password":"wrong"}`)

		require.NoError(t, controller.APILogin(ctx))

		ctx2 := newStubContext()
		ctx2.method = "POST"
		ctx2.headers["X-Forwarded-For"] = "203.0.113.9"
		ctx2.body = []byte(`{"email":"pat@example.com","password":"wrong"}`)

		require.NoError(t, controller.APILogin(ctx2))
		body, ok := ctx2.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "TOO_MANY_ATTEMPTS", body["code"])
	})
}

func TestAPIValidate(t *testing.T) {
	t.Run("reports the session state", func(t *testing.T) {
		user := seedAccount(t, "Correct-Horse1!")
		user.MustReset = true
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.locals[platform.SessionLocalsKey] = &platform.Session{User: user}

		require.NoError(t, h.controller.APIValidate(ctx))
		assert.Equal(t, http.StatusOK, ctx.jsonStatus)

		body, ok := ctx.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, body["must_reset"])
		assert.Equal(t, true, body["is_active"])
	})

	t.Run("no session is unauthorized", func(t *testing.T) {
		h := newControllerHarness(t, seedAccount(t, "Correct-Horse1!"))

		ctx := newStubContext()
		require.NoError(t, h.controller.APIValidate(ctx))
		assert.Equal(t, http.StatusUnauthorized, ctx.jsonStatus)
	})
}

func TestAPISetPassword(t *testing.T) {
	t.Run("clears the forced reset and reissues the cookie", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.MustReset = true
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.locals[platform.SessionLocalsKey] = &platform.Session{User: user}
		ctx.body = []byte(`{"new_password":"Brand-New-Pass7!","confirm_password":"Brand-New-Pass7!"}`)

		require.NoError(t, h.controller.APISetPassword(ctx))
		assert.Equal(t, http.StatusOK, ctx.jsonStatus)

		assert.False(t, user.MustReset)
		assert.NotEmpty(t, ctx.Cookies(platform.SessionCookieName))
	})

	t.Run("weak password reports the requirement list", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.MustReset = true
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.method = "POST"
		ctx.locals[platform.SessionLocalsKey] = &platform.Session{User: user}
		ctx.body = []byte(`{"new_password":"weak","confirm_password":"weak"}`)

		require.NoError(t, h.controller.APISetPassword(ctx))
		assert.Equal(t, http.StatusBadRequest, ctx.jsonStatus)

		body, ok := ctx.jsonBody.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "WEAK_PASSWORD", body["code"])
		assert.NotNil(t, body["requirements"])
	})
}

func TestAPIForgotPassword(t *testing.T) {
	t.Run("answers identically for known and unknown addresses", func(t *testing.T) {
		user := seedAccount(t, "Correct-Horse1!")
		h := newControllerHarness(t, user)

		known := newStubContext()
		known.method = "POST"
		known.body = []byte(`{"email":"pat@example.com"}`)
		require.NoError(t, h.controller.APIForgotPassword(known))

		unknown := newStubContext()
		unknown.method = "POST"
		unknown.body = []byte(`{"email":"ghost@example.com"}`)
		require.NoError(t, h.controller.APIForgotPassword(unknown))

		assert.Equal(t, known.jsonStatus, unknown.jsonStatus)
		assert.Equal(t, known.jsonBody, unknown.jsonBody)

		// The known account really was rotated.
		assert.True(t, user.MustReset)
	})
}

func TestLogOut(t *testing.T) {
	t.Run("clears the cookie and goes home", func(t *testing.T) {
		user := seedAccount(t, "Correct-Horse1!")
		h := newControllerHarness(t, user)

		ctx := newStubContext()
		ctx.cookies[platform.SessionCookieName] = "stale-token"

		require.NoError(t, h.controller.LogOut(ctx))
		assert.Equal(t, "/", ctx.redirectTo)

		// The eviction cookie is expired and empty.
		require.NotEmpty(t, ctx.setCookies)
		last := ctx.setCookies[len(ctx.setCookies)-1]
		assert.Equal(t, platform.SessionCookieName, last.Name)
		assert.Empty(t, last.Value)
		assert.True(t, last.Expires.Before(time.Now()))
	})
}
