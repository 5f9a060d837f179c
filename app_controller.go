package platform

import (
	"bytes"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/deceasedstatus/platform/verify"
)

// AppController is the signed-in application surface: the dashboard page,
// single lookups, history, and bulk uploads. Every route here sits behind
// the gatekeeper, so a session is always present on the context.
type AppController struct {
	Logger  Logger
	Repo    RepositoryManager
	Search  *SearchService
	Batches *RunBatchHandler
	Views   *AppControllerViews
}

type AppControllerViews struct {
	Dashboard string
}

type AppControllerOption func(*AppController) *AppController

func NewAppController(opts ...AppControllerOption) *AppController {
	c := &AppController{
		Logger: defLogger{},
		Views: &AppControllerViews{
			Dashboard: "app",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in app controller...")
	}
	if c.Search == nil {
		panic("Missing SearchService in app controller...")
	}
	if c.Batches == nil {
		panic("Missing RunBatchHandler in app controller...")
	}

	return c
}

func WithAppControllerRepo(repo RepositoryManager) AppControllerOption {
	return func(c *AppController) *AppController {
		c.Repo = repo
		return c
	}
}

func WithAppControllerSearch(search *SearchService) AppControllerOption {
	return func(c *AppController) *AppController {
		c.Search = search
		return c
	}
}

func WithAppControllerBatches(handler *RunBatchHandler) AppControllerOption {
	return func(c *AppController) *AppController {
		c.Batches = handler
		return c
	}
}

func WithAppControllerLogger(logger Logger) AppControllerOption {
	return func(c *AppController) *AppController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func RegisterAppRoutes[T any](app router.Router[T], controller *AppController) {
	app.Get("/app", controller.Dashboard).SetName("app.dashboard")

	app.Post("/api/search", controller.RunSearch).SetName("api.search")
	app.Get("/api/search/history", controller.History).SetName("api.search.history")
	app.Post("/api/search/bulk", controller.RunBulk).SetName("api.search.bulk")
	app.Get("/api/search/batches", controller.ListBatches).SetName("api.search.batches")
	app.Get("/api/search/batches/:id", controller.GetBatch).SetName("api.search.batch")
}

func (a *AppController) Dashboard(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return ctx.Redirect("/login", http.StatusFound)
	}

	recent, err := a.Search.History(ctx.Context(), user.ID, 10)
	if err != nil {
		a.Logger.Warn("dashboard history error", "error", err)
	}

	total, err := a.Repo.Searches().CountByUser(ctx.Context(), user.ID)
	if err != nil {
		a.Logger.Warn("dashboard count error", "error", err)
	}

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"user":           user,
		"recent":         recent,
		"total_searches": total,
	})
}

// SearchPayload is a single verification query.
type SearchPayload struct {
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	City        string `json:"city"`
	State       string `json:"state"`
}

func (r SearchPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.DateOfBirth, validation.Required, validation.Date("2006-01-02")),
	)
}

func (r SearchPayload) query() verify.Query {
	return verify.Query{
		FirstName:   r.FirstName,
		MiddleName:  r.MiddleName,
		LastName:    r.LastName,
		DateOfBirth: r.DateOfBirth,
		City:        r.City,
		State:       r.State,
	}
}

func (a *AppController) RunSearch(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	payload := new(SearchPayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": FormatValidationErrorToMap(err),
		})
	}

	record, err := a.Search.Lookup(ctx.Context(), user.ID, payload.query())
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"result": record,
	})
}

func (a *AppController) History(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	limit := ctx.QueryInt("limit", 50)

	records, err := a.Search.History(ctx.Context(), user.ID, limit)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"searches": records,
	})
}

// RunBulk accepts a CSV upload, parses it up front, and starts a background
// batch. Row level problems are reported back with the accepted batch so
// the caller can fix the file; only an unusable file is rejected outright.
func (a *AppController) RunBulk(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	body := ctx.Body()
	if len(body) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"error": "empty upload"})
	}

	queries, rowErrors, err := verify.ParseCSV(bytes.NewReader(body))
	if err != nil {
		return jsonError(ctx, err)
	}

	if len(queries) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":      "no valid rows in upload",
			"row_errors": rowErrors,
		})
	}

	fileName := ctx.Header("X-File-Name")
	if fileName == "" {
		fileName = "upload.csv"
	}

	var created *SearchBatch
	err = a.Batches.Execute(ctx.Context(), RunBatchMessage{
		UserID:   user.ID,
		FileName: fileName,
		Queries:  queries,
		OnResponse: func(batch *SearchBatch) {
			created = batch
		},
	})
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"batch":      created,
		"row_errors": rowErrors,
	})
}

func (a *AppController) ListBatches(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	limit := ctx.QueryInt("limit", 20)

	records, err := a.Repo.Batches().ListByUser(ctx.Context(), user.ID, limit)
	if err != nil {
		return jsonError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"batches": records,
	})
}

// GetBatch returns one batch with its rows. Ownership is enforced here so
// one account cannot poll another account's upload.
func (a *AppController) GetBatch(ctx router.Context) error {
	user, ok := UserFromRouter(ctx)
	if !ok {
		return jsonError(ctx, ErrSessionInvalid)
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return jsonError(ctx, ErrBatchNotFound)
	}

	batch, err := a.Repo.Batches().GetByID(ctx.Context(), id.String())
	if err != nil {
		return jsonError(ctx, ErrBatchNotFound)
	}

	if batch.UserID != user.ID {
		return jsonError(ctx, ErrBatchNotFound)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"batch": batch,
	})
}
