package platform

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/deceasedstatus/platform/notify"
)

// SiteController serves the public marketing surface and the request-access
// flow. A submitted request is stored for audit and immediately provisions a
// PENDING_APPROVAL account, so the approval queue is the single place
// admins work from.
type SiteController struct {
	Logger     Logger
	Repo       RepositoryManager
	Dispatcher *notify.Dispatcher
	Activity   ActivitySink
	Throttle   *KeyedThrottle
	// AdminEmail receives a heads-up for every new access request.
	AdminEmail string
	Views      *SiteControllerViews
}

type SiteControllerViews struct {
	Home           string
	RequestAccount string
}

type SiteControllerOption func(*SiteController) *SiteController

func NewSiteController(opts ...SiteControllerOption) *SiteController {
	c := &SiteController{
		Logger: defLogger{},
		Views: &SiteControllerViews{
			Home:           "home",
			RequestAccount: "request_account",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in site controller...")
	}
	if c.Throttle == nil {
		c.Throttle = NewKeyedThrottle(1, 3)
	}

	return c
}

func WithSiteControllerRepo(repo RepositoryManager) SiteControllerOption {
	return func(c *SiteController) *SiteController {
		c.Repo = repo
		return c
	}
}

func WithSiteControllerDispatcher(d *notify.Dispatcher) SiteControllerOption {
	return func(c *SiteController) *SiteController {
		c.Dispatcher = d
		return c
	}
}

func WithSiteControllerActivity(sink ActivitySink) SiteControllerOption {
	return func(c *SiteController) *SiteController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

func WithSiteControllerLogger(logger Logger) SiteControllerOption {
	return func(c *SiteController) *SiteController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithSiteControllerAdminEmail(email string) SiteControllerOption {
	return func(c *SiteController) *SiteController {
		c.AdminEmail = email
		return c
	}
}

func RegisterSiteRoutes[T any](app router.Router[T], controller *SiteController) {
	app.Get("/", controller.Home).SetName("site.home")
	app.Get("/request-account", controller.RequestAccountShow).SetName("request-account.get")
	app.Post("/request-account", controller.RequestAccountPost).SetName("request-account.post")
	app.Post("/api/account-request", controller.APIRequestAccount).SetName("api.account-request")
}

func (s *SiteController) Home(ctx router.Context) error {
	return ctx.Render(s.Views.Home, router.ViewContext{})
}

func (s *SiteController) RequestAccountShow(ctx router.Context) error {
	return ctx.Render(s.Views.RequestAccount, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// AccountRequestPayload is the request-access form.
type AccountRequestPayload struct {
	Company        string `form:"company" json:"company"`
	FirstName      string `form:"first_name" json:"first_name"`
	LastName       string `form:"last_name" json:"last_name"`
	Email          string `form:"email" json:"email"`
	Phone          string `form:"phone" json:"phone"`
	UseCase        string `form:"use_case" json:"use_case"`
	ExpectedVolume string `form:"expected_volume" json:"expected_volume"`
	Message        string `form:"message" json:"message"`
}

func (r AccountRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Company, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(validPhoneNumber)),
		validation.Field(&r.UseCase, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.ExpectedVolume, validation.Required),
		validation.Field(&r.Message, validation.Length(0, 5000)),
	)
}

// validPhoneNumber accepts empty values; when present the number has to
// parse and be dialable. Defaults to US numbers when no country code is
// given.
func validPhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func (s *SiteController) RequestAccountPost(ctx router.Context) error {
	payload := new(AccountRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		s.Logger.Error("account request parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(http.StatusBadRequest).Render(s.Views.RequestAccount, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(s.Views.RequestAccount, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !s.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		return ctx.Status(http.StatusTooManyRequests).Render(s.Views.RequestAccount, router.ViewContext{
			"errors": map[string]string{"form": "Too many requests, try again later"},
			"record": payload,
		})
	}

	if err := s.submit(ctx, payload); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Could not submit request",
		}).Render(s.Views.RequestAccount, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"form": UserMessage(err)},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Request received. We will be in touch once it is reviewed.",
	}).Redirect("/", http.StatusSeeOther)
}

func (s *SiteController) APIRequestAccount(ctx router.Context) error {
	payload := new(AccountRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if !s.Throttle.Allow(throttleKey(ctx, payload.Email)) {
		return jsonError(ctx, ErrTooManyLoginAttempts)
	}

	if err := s.submit(ctx, payload); err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{"success": true})
}

func (s *SiteController) submit(ctx router.Context, payload *AccountRequestPayload) error {
	request := &AccountRequest{
		ID:             uuid.New(),
		Company:        payload.Company,
		Email:          NormalizeEmail(payload.Email),
		Phone:          payload.Phone,
		UseCase:        payload.UseCase,
		ExpectedVolume: payload.ExpectedVolume,
		Message:        payload.Message,
	}

	if _, err := s.Repo.AccountRequests().Create(ctx.Context(), request); err != nil {
		s.Logger.Error("account request create error", "error", err)
		return err
	}

	handler := NewProvisionAccountHandler(s.Repo).
		WithLogger(s.Logger).
		WithActivitySink(s.Activity).
		WithDispatcher(s.Dispatcher)

	err := handler.Execute(ctx.Context(), ProvisionAccountMessage{
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Email:           payload.Email,
		Role:            RoleUser,
		RequireApproval: true,
		Actor:           ActorRef{Type: "system"},
	})
	if err != nil {
		return err
	}

	s.notifyAdmins(payload)
	return nil
}

func (s *SiteController) notifyAdmins(payload *AccountRequestPayload) {
	if s.Dispatcher == nil || s.AdminEmail == "" {
		return
	}

	s.Dispatcher.Dispatch(notify.Message{
		Kind:      notify.KindAccountRequest,
		Recipient: s.AdminEmail,
		Subject:   "New access request: " + payload.Company,
		Payload: map[string]string{
			"company":         payload.Company,
			"email":           NormalizeEmail(payload.Email),
			"use_case":        payload.UseCase,
			"expected_volume": payload.ExpectedVolume,
		},
	})
}
