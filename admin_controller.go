package platform

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AdminController is the HTTP face of the admin control surface. The
// gatekeeper guarantees every request here carries an active admin session;
// the controller still resolves the actor so self-targeting rules and audit
// events get the right identity.
type AdminController struct {
	Logger Logger
	Admin  *AccountAdmin
	Repo   RepositoryManager
	Views  *AdminControllerViews
}

type AdminControllerViews struct {
	Dashboard string
	Approvals string
}

type AdminControllerOption func(*AdminController) *AdminController

func NewAdminController(opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger: defLogger{},
		Views: &AdminControllerViews{
			Dashboard: "admin/dashboard",
			Approvals: "admin/approvals",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Admin == nil {
		panic("Missing AccountAdmin in admin controller...")
	}
	if c.Repo == nil {
		panic("Missing RepositoryManager in admin controller...")
	}

	return c
}

func WithAdminControllerAdmin(admin *AccountAdmin) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Admin = admin
		return c
	}
}

func WithAdminControllerRepo(repo RepositoryManager) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Repo = repo
		return c
	}
}

func WithAdminControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func RegisterAdminRoutes[T any](app router.Router[T], controller *AdminController) {
	app.Get("/admin", controller.Dashboard).SetName("admin.dashboard")
	app.Get("/admin/approvals", controller.Approvals).SetName("admin.approvals")

	app.Get("/api/admin/users", controller.ListUsers).SetName("api.admin.users.list")
	app.Post("/api/admin/users", controller.CreateUser).SetName("api.admin.users.create")
	app.Get("/api/admin/pending-approvals", controller.ListPending).SetName("api.admin.pending.list")

	app.Post("/api/admin/users/:id/toggle-active", controller.ToggleActive).SetName("api.admin.users.toggle-active")
	app.Post("/api/admin/users/:id/toggle-role", controller.ToggleRole).SetName("api.admin.users.toggle-role")
	app.Post("/api/admin/users/:id/approve", controller.Approve).SetName("api.admin.users.approve")
	app.Post("/api/admin/users/:id/reject", controller.Reject).SetName("api.admin.users.reject")
	app.Post("/api/admin/users/:id/resend-password", controller.ResendPassword).SetName("api.admin.users.resend-password")
	app.Delete("/api/admin/users/:id", controller.DeleteUser).SetName("api.admin.users.delete")
}

func (a *AdminController) Dashboard(ctx router.Context) error {
	users, err := a.Admin.ListAccounts(ctx.Context())
	if err != nil {
		a.Logger.Error("admin dashboard list error", "error", err)
		return ctx.Status(HTTPStatus(err)).Render("errors/500", router.ViewContext{
			"message": UserMessage(err),
		})
	}

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"users": users,
	})
}

func (a *AdminController) Approvals(ctx router.Context) error {
	pending, err := a.Admin.ListPendingApprovals(ctx.Context())
	if err != nil {
		a.Logger.Error("admin approvals list error", "error", err)
		return ctx.Status(HTTPStatus(err)).Render("errors/500", router.ViewContext{
			"message": UserMessage(err),
		})
	}

	return ctx.Render(a.Views.Approvals, router.ViewContext{
		"pending": pending,
	})
}

func (a *AdminController) ListUsers(ctx router.Context) error {
	users, err := a.Admin.ListAccounts(ctx.Context())
	if err != nil {
		return jsonError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"users": users})
}

func (a *AdminController) ListPending(ctx router.Context) error {
	pending, err := a.Admin.ListPendingApprovals(ctx.Context())
	if err != nil {
		return jsonError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"pending": pending})
}

// CreateUserRequest provisions an account from the admin dashboard.
type CreateUserRequest struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Email     string `form:"email" json:"email"`
	Role      string `form:"role" json:"role"`
}

func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Role, validation.In(RoleUser, RoleAdmin)),
	)
}

func (a *AdminController) CreateUser(ctx router.Context) error {
	actor, err := a.actor(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	payload := new(CreateUserRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var resp *ProvisionAccountResponse
	handler := NewProvisionAccountHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Admin.activity).
		WithDispatcher(a.Admin.dispatcher)

	err = handler.Execute(ctx.Context(), ProvisionAccountMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Role:      payload.Role,
		Actor:     actor,
		OnResponse: func(r *ProvisionAccountResponse) {
			resp = r
		},
	})
	if err != nil {
		return jsonError(ctx, err)
	}

	// The temporary password is surfaced once, to the provisioning admin.
	return ctx.JSON(http.StatusCreated, map[string]any{
		"user":          resp.User,
		"temp_password": resp.TempPassword,
	})
}

// ToggleActiveRequest flips the active flag.
type ToggleActiveRequest struct {
	Active bool `form:"active" json:"active"`
}

func (a *AdminController) ToggleActive(ctx router.Context) error {
	actor, id, err := a.actorAndTarget(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	payload := new(ToggleActiveRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	user, err := a.Admin.SetActive(ctx.Context(), actor, id, payload.Active)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"user": user})
}

// ToggleRoleRequest switches the account role.
type ToggleRoleRequest struct {
	Role string `form:"role" json:"role"`
}

func (r ToggleRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(RoleUser, RoleAdmin)),
	)
}

func (a *AdminController) ToggleRole(ctx router.Context) error {
	actor, id, err := a.actorAndTarget(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	payload := new(ToggleRoleRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	user, err := a.Admin.SetRole(ctx.Context(), actor, id, payload.Role)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"user": user})
}

func (a *AdminController) Approve(ctx router.Context) error {
	return a.decide(ctx, true)
}

func (a *AdminController) Reject(ctx router.Context) error {
	return a.decide(ctx, false)
}

func (a *AdminController) decide(ctx router.Context, approve bool) error {
	actor, id, err := a.actorAndTarget(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	user, err := a.Admin.Decide(ctx.Context(), actor, id, approve)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"user": user})
}

func (a *AdminController) ResendPassword(ctx router.Context) error {
	actor, id, err := a.actorAndTarget(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	resp, err := a.Admin.ResendCredentials(ctx.Context(), actor, id)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"issued":        resp.Issued,
		"temp_password": resp.TempPassword,
	})
}

func (a *AdminController) DeleteUser(ctx router.Context) error {
	actor, id, err := a.actorAndTarget(ctx)
	if err != nil {
		return jsonError(ctx, err)
	}

	if err := a.Admin.Delete(ctx.Context(), actor, id); err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

func (a *AdminController) actor(ctx router.Context) (ActorRef, error) {
	session, ok := SessionFromRouter(ctx)
	if !ok || session.User == nil {
		return ActorRef{}, ErrSessionInvalid
	}
	if !session.IsAdmin() {
		return ActorRef{}, ErrForbidden
	}
	return ActorRef{ID: session.User.ID.String(), Type: "admin"}, nil
}

func (a *AdminController) actorAndTarget(ctx router.Context) (ActorRef, uuid.UUID, error) {
	actor, err := a.actor(ctx)
	if err != nil {
		return ActorRef{}, uuid.Nil, err
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ActorRef{}, uuid.Nil, ErrAccountNotFound.WithMetadata(map[string]any{
			"id": ctx.Param("id"),
		})
	}

	return actor, id, nil
}
