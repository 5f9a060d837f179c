package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	platform "github.com/deceasedstatus/platform"
	"github.com/deceasedstatus/platform/config"
	"github.com/deceasedstatus/platform/middleware/gatekeeper"
	"github.com/deceasedstatus/platform/notify"
	"github.com/deceasedstatus/platform/verify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	cfs "github.com/goliatone/go-composite-fs"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/time/rate"
)

//go:embed views public
var embeddedFS embed.FS

// App collects the wired subsystems so the With* setup steps can hand work
// to each other.
type App struct {
	config     *gconfig.Container[*config.BaseConfig]
	bunDB      *bun.DB
	repo       platform.RepositoryManager
	dispatcher *notify.Dispatcher
	activity   platform.ActivitySink
	sessions   *platform.SessionManager
	cookies    *platform.CookieManager
	search     *platform.SearchService
	batches    *platform.RunBatchHandler
	srv        router.Server[*fiber.App]
	logger     *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	WithNotifications(app)

	if err := WithHTTPServer(app); err != nil {
		panic(err)
	}

	WithAccountRoutes(app)
	WithSearchRoutes(app)

	go func() {
		if err := app.srv.Serve(app.Config().GetApp().GetAddress()); err != nil {
			app.GetLogger("server").Error("server stopped", "error", err)
		}
	}()

	WaitExitSignal()

	// Let in-flight credential deliveries land before the process dies.
	app.dispatcher.Wait()
	if err := app.srv.Shutdown(ctx); err != nil {
		app.GetLogger("server").Error("shutdown error", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	pcfg := app.Config().GetPersistence()

	db, err := sql.Open(sqliteshim.ShimName, pcfg.GetDSN())
	if err != nil {
		return err
	}

	persistence.RegisterModel((*platform.User)(nil))
	persistence.RegisterModel((*platform.SearchRecord)(nil))
	persistence.RegisterModel((*platform.SearchBatch)(nil))
	persistence.RegisterModel((*platform.AccountRequest)(nil))

	client, err := persistence.New(pcfg, db, sqlitedialect.New())
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(platform.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = platform.NewRepositoryManager(client.DB())
	return app.repo.Validate()
}

// WithNotifications wires credential delivery. A failed send is terminal for
// the message, so the failure handler writes the full payload into the
// operator log; for temp passwords that log line is the last copy of the
// credential.
func WithNotifications(app *App) {
	ecfg := app.Config().GetEmail()
	logger := app.GetLogger("notify")

	var notifier notify.Notifier
	if ecfg.GetEnabled() {
		notifier = notify.NewSMTP(notify.SMTPConfig{
			Host:     ecfg.GetHost(),
			Port:     ecfg.GetPort(),
			Username: ecfg.GetUsername(),
			Password: ecfg.GetPassword(),
			From:     ecfg.GetFrom(),
		})
	} else {
		notifier = notify.NewConsole(os.Stdout)
	}

	app.dispatcher = notify.NewDispatcher(notifier, func(msg notify.Message, err error) {
		logger.Error("notification delivery failed",
			"kind", string(msg.Kind),
			"recipient", msg.Recipient,
			"payload", msg.Payload,
			"error", err,
		)
	})

	audit := app.GetLogger("audit")
	app.activity = platform.ActivitySinkFunc(func(ctx context.Context, event platform.ActivityEvent) error {
		audit.Info("activity",
			"event", string(event.EventType),
			"user_id", event.UserID,
			"actor_id", event.Actor.ID,
			"actor_type", event.Actor.Type,
			"metadata", event.Metadata,
		)
		return nil
	})
}

func WithHTTPServer(app *App) error {
	vcfg := app.Config().GetViews()

	embeddedViews, err := fs.Sub(embeddedFS, vcfg.GetDir())
	if err != nil {
		return err
	}
	embeddedAssets, err := fs.Sub(embeddedFS, vcfg.GetAssetsDir())
	if err != nil {
		return err
	}

	// Disk overrides first so templates can be edited without a rebuild.
	viewsFS := cfs.NewCompositeFS(os.DirFS(vcfg.GetDir()), embeddedViews)
	assetsFS := cfs.NewCompositeFS(os.DirFS(vcfg.GetAssetsDir()), embeddedAssets)

	engine := django.NewPathForwardingFileSystem(http.FS(viewsFS), "", vcfg.GetExtension())
	engine.Reload(vcfg.GetReload())

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))
	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	srv.Router().Static("/static", ".", router.Static{
		FS:   assetsFS,
		Root: ".",
	})

	acfg := app.Config().GetAuth()

	tokens := platform.NewTokenService(
		[]byte(acfg.GetSigningKey()),
		acfg.GetSessionDuration(),
		acfg.GetIssuer(),
		acfg.GetAudience(),
		app.GetLogger("tokens"),
	)

	app.sessions = platform.NewSessionManager(tokens, app.repo.Users()).
		WithLogger(app.GetLogger("sessions"))

	app.cookies = platform.NewCookieManager(
		platform.WithCookieName(acfg.GetCookieName()),
		platform.WithCookieDuration(acfg.GetSessionDuration()),
		platform.WithCookieSecure(acfg.GetSecureCookies()),
		platform.WithCookieLogger(app.GetLogger("cookies")),
	)

	srv.Router().Use(gatekeeper.New(gatekeeper.Config{
		Sessions: app.sessions,
		Cookies:  app.cookies,
		Logger:   app.GetLogger("gatekeeper"),
	}))

	app.srv = srv
	return nil
}

func WithAccountRoutes(app *App) {
	authenticator := platform.NewAuthenticator(app.repo.Users()).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(app.activity)

	authController := platform.NewAuthController(
		platform.WithAuthControllerRepo(app.repo),
		platform.WithAuthControllerAuth(authenticator),
		platform.WithAuthControllerSessions(app.sessions, app.cookies),
		platform.WithAuthControllerLogger(app.GetLogger("auth:ctrl")),
		platform.WithAuthControllerActivity(app.activity),
		platform.WithAuthControllerDispatcher(app.dispatcher),
	)
	platform.RegisterAuthRoutes(app.srv.Router(), authController)

	admin := platform.NewAccountAdmin(app.repo).
		WithDispatcher(app.dispatcher).
		WithActivitySink(app.activity).
		WithLogger(app.GetLogger("admin"))

	adminController := platform.NewAdminController(
		platform.WithAdminControllerAdmin(admin),
		platform.WithAdminControllerRepo(app.repo),
		platform.WithAdminControllerLogger(app.GetLogger("admin:ctrl")),
	)
	platform.RegisterAdminRoutes(app.srv.Router(), adminController)

	siteController := platform.NewSiteController(
		platform.WithSiteControllerRepo(app.repo),
		platform.WithSiteControllerDispatcher(app.dispatcher),
		platform.WithSiteControllerActivity(app.activity),
		platform.WithSiteControllerLogger(app.GetLogger("site")),
		platform.WithSiteControllerAdminEmail(app.Config().GetApp().GetAdminEmail()),
	)
	platform.RegisterSiteRoutes(app.srv.Router(), siteController)
}

func WithSearchRoutes(app *App) {
	pcfg := app.Config().GetProvider()

	var provider verify.Provider
	if pcfg.GetUseMock() {
		provider = verify.NewMockProvider()
	} else {
		provider = verify.NewHTTPProvider(
			pcfg.GetEndpoint(),
			pcfg.GetAPIKey(),
			verify.WithSourceName(pcfg.GetSource()),
		)
	}

	app.search = platform.NewSearchService(app.repo, provider).
		WithRateLimit(rate.Limit(pcfg.GetRateLimit()), pcfg.GetRateBurst()).
		WithLogger(app.GetLogger("search"))

	app.batches = platform.NewRunBatchHandler(app.repo, provider).
		WithLimiter(app.search.Limiter()).
		WithLogger(app.GetLogger("batches"))

	appController := platform.NewAppController(
		platform.WithAppControllerRepo(app.repo),
		platform.WithAppControllerSearch(app.search),
		platform.WithAppControllerBatches(app.batches),
		platform.WithAppControllerLogger(app.GetLogger("app:ctrl")),
	)
	platform.RegisterAppRoutes(app.srv.Router(), appController)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
