package platform

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"

	"github.com/deceasedstatus/platform/notify"
)

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	SetPassword    string
	ForgotPassword string
	Inactive       string
}

type AuthControllerViews struct {
	Login          string
	SetPassword    string
	ForgotPassword string
	Inactive       string
}

// AuthController owns the session endpoints: login, logout, the forced
// reset step, forgot-password, and the inactive notice. Each flow has a
// page form and a JSON twin under /api/auth.
type AuthController struct {
	Debug      bool
	Logger     Logger
	Repo       RepositoryManager
	Auth       *Authenticator
	Sessions   *SessionManager
	Cookies    *CookieManager
	Throttle   *KeyedThrottle
	Activity   ActivitySink
	Dispatcher *notify.Dispatcher
	Routes     *AuthControllerRoutes
	Views      *AuthControllerViews
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			SetPassword:    "/set-password",
			ForgotPassword: "/forgot-password",
			Inactive:       "/inactive",
		},
		Views: &AuthControllerViews{
			Login:          "login",
			SetPassword:    "set_password",
			ForgotPassword: "forgot_password",
			Inactive:       "inactive",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}
	if c.Auth == nil {
		panic("Missing Authenticator in auth controller...")
	}
	if c.Sessions == nil {
		panic("Missing SessionManager in auth controller...")
	}
	if c.Cookies == nil {
		panic("Missing CookieManager in auth controller...")
	}
	if c.Throttle == nil {
		c.Throttle = NewKeyedThrottle(1, 5)
	}

	return c
}

func WithAuthControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithAuthControllerAuth(auth *Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auth = auth
		return c
	}
}

func WithAuthControllerSessions(sessions *SessionManager, cookies *CookieManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sessions = sessions
		c.Cookies = cookies
		return c
	}
}

func WithAuthControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithAuthControllerThrottle(t *KeyedThrottle) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Throttle = t
		return c
	}
}

func WithAuthControllerActivity(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

func WithAuthControllerDispatcher(d *notify.Dispatcher) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Dispatcher = d
		return c
	}
}

func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	app.Get(controller.Routes.Login, controller.LoginShow).SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.SetPassword, controller.SetPasswordShow).SetName("set-password.get")
	app.Post(controller.Routes.SetPassword, controller.SetPasswordPost).SetName("set-password.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).SetName("forgot-password.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).SetName("forgot-password.post")

	app.Get(controller.Routes.Inactive, controller.InactiveShow).SetName("inactive.get")

	app.Post("/api/auth/login", controller.APILogin).SetName("api.auth.login")
	app.Post("/api/auth/logout", controller.APILogout).SetName("api.auth.logout")
	app.Get("/api/auth/validate", controller.APIValidate).SetName("api.auth.validate")
	app.Post("/api/auth/set-password", controller.APISetPassword).SetName("api.auth.set-password")
	app.Post("/api/auth/change-password", controller.APIChangePassword).SetName("api.auth.change-password")
	app.Post("/api/auth/forgot-password", controller.APIForgotPassword).SetName("api.auth.forgot-password")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("login parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(http.StatusBadRequest).Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !a.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		errs["authentication"] = UserMessage(ErrTooManyLoginAttempts)
		return ctx.Status(http.StatusTooManyRequests).Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	user, err := a.Auth.Authenticate(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		errs["authentication"] = UserMessage(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := a.issueSession(ctx, user); err != nil {
		return a.renderError(ctx, err)
	}

	if user.MustReset {
		return ctx.Redirect(a.Routes.SetPassword, http.StatusSeeOther)
	}

	redirect := a.Cookies.GetRedirect(ctx, (&Session{User: user}).HomePath())
	return ctx.Redirect(redirect, http.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Cookies.Clear(ctx)
	return ctx.Redirect("/", http.StatusSeeOther)
}

// SetPasswordRequest carries the forced reset form.
type SetPasswordRequest struct {
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r SetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword))),
	)
}

func (a *AuthController) SetPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.SetPassword, router.ViewContext{
		"errors": nil,
	})
}

func (a *AuthController) SetPasswordPost(ctx router.Context) error {
	session, ok := SessionFromRouter(ctx)
	if !ok {
		return ctx.Redirect(a.Routes.Login, http.StatusSeeOther)
	}

	payload := new(SetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("set password parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(http.StatusBadRequest).Render(a.Views.SetPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.SetPassword, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var updated *User
	handler := NewSetInitialPasswordHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)
	err := handler.Execute(ctx.Context(), SetInitialPasswordMessage{
		UserID:          session.User.ID,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse:      func(user *User) { updated = user },
	})
	if err != nil {
		return ctx.Render(a.Views.SetPassword, router.ViewContext{
			"errors": map[string]string{"password": UserMessage(err)},
		})
	}

	// Reissue so the session reflects the cleared flag immediately.
	if updated != nil {
		if err := a.issueSession(ctx, updated); err != nil {
			a.Logger.Warn("failed to reissue session after password set", "error", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated",
	}).Redirect((&Session{User: updated}).HomePath(), http.StatusSeeOther)
}

// ForgotPasswordRequest carries the self-service reset form.
type ForgotPasswordRequest struct {
	Email string `form:"email" json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// forgotPasswordMessage is the one answer the flow gives, registered or not.
const forgotPasswordMessage = "If an account exists for that address, a temporary password is on its way."

func (a *AuthController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors": nil,
	})
}

func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(http.StatusBadRequest).Render(a.Views.ForgotPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !a.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		return ctx.Status(http.StatusTooManyRequests).Render(a.Views.ForgotPassword, router.ViewContext{
			"errors": map[string]string{"form": UserMessage(ErrTooManyLoginAttempts)},
		})
	}

	a.issueTempCredential(ctx, payload.Email)

	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"message": forgotPasswordMessage,
	})
}

func (a *AuthController) InactiveShow(ctx router.Context) error {
	return ctx.Render(a.Views.Inactive, router.ViewContext{})
}

// --- JSON surface ---

func (a *AuthController) APILogin(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !a.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		return jsonError(ctx, ErrTooManyLoginAttempts)
	}

	user, err := a.Auth.Authenticate(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return jsonError(ctx, err)
	}

	if err := a.issueSession(ctx, user); err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"user":       user,
		"must_reset": user.MustReset,
	})
}

func (a *AuthController) APILogout(ctx router.Context) error {
	a.Cookies.Clear(ctx)
	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

func (a *AuthController) APIValidate(ctx router.Context) error {
	session, ok := SessionFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"user":       session.User,
		"must_reset": session.MustReset(),
		"is_active":  session.IsActive(),
	})
}

func (a *AuthController) APISetPassword(ctx router.Context) error {
	session, ok := SessionFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	payload := new(SetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	var updated *User
	handler := NewSetInitialPasswordHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)
	err := handler.Execute(ctx.Context(), SetInitialPasswordMessage{
		UserID:          session.User.ID,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse:      func(user *User) { updated = user },
	})
	if err != nil {
		return jsonError(ctx, err)
	}

	if updated != nil {
		if err := a.issueSession(ctx, updated); err != nil {
			a.Logger.Warn("failed to reissue session after password set", "error", err)
		}
	}

	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

// ChangePasswordRequest rotates a password outside the forced reset flow.
type ChangePasswordRequest struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword))),
	)
}

func (a *AuthController) APIChangePassword(ctx router.Context) error {
	session, ok := SessionFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	payload := new(ChangePasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	handler := NewChangePasswordHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity)
	err := handler.Execute(ctx.Context(), ChangePasswordMessage{
		UserID:          session.User.ID,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

func (a *AuthController) APIForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !a.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		return jsonError(ctx, ErrTooManyLoginAttempts)
	}

	a.issueTempCredential(ctx, payload.Email)

	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": forgotPasswordMessage,
	})
}

// --- helpers ---

func (a *AuthController) issueSession(ctx router.Context, user *User) error {
	token, err := a.Sessions.Issue(user)
	if err != nil {
		return err
	}
	a.Cookies.Write(ctx, token)
	return nil
}

// issueTempCredential runs the reissue flow and swallows the outcome: both
// page and API callers answer identically whether or not the email matched
// an account.
func (a *AuthController) issueTempCredential(ctx router.Context, email string) {
	handler := NewIssueTempPasswordHandler(a.Repo).
		WithLogger(a.Logger).
		WithDispatcher(a.Dispatcher).
		WithActivitySink(a.Activity)
	if err := handler.Execute(ctx.Context(), IssueTempPasswordMessage{Email: email, RequireActive: true}); err != nil {
		a.Logger.Error("forgot password handler error", "error", err)
	}
}

func (a *AuthController) renderError(ctx router.Context, err error) error {
	return ctx.Status(HTTPStatus(err)).Render("errors/500", router.ViewContext{
		"message": UserMessage(err),
	})
}

func jsonError(ctx router.Context, err error) error {
	code := ""
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		code = rich.TextCode
	}

	body := map[string]any{"error": UserMessage(err)}
	if code != "" {
		body["code"] = code
	}
	if rich != nil && len(rich.Metadata) > 0 {
		if reqs, ok := rich.Metadata["requirements"]; ok {
			body["requirements"] = reqs
		}
	}

	return ctx.JSON(HTTPStatus(err), body)
}

func throttleKey(ctx router.Context, fallback string) string {
	if fwd := ctx.Header("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return NormalizeEmail(fallback)
}
