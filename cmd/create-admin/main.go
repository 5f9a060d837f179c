// Command create-admin provisions an administrator account directly against
// the database. The generated temporary password is printed to stdout; the
// account must rotate it on first login like any other.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	platform "github.com/deceasedstatus/platform"
	"github.com/deceasedstatus/platform/notify"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-persistence-bun"
)

func main() {
	var (
		email     = flag.String("email", "", "admin email address (required)")
		firstName = flag.String("first-name", "", "first name")
		lastName  = flag.String("last-name", "", "last name")
		dsn       = flag.String("dsn", "file:app.db", "database DSN")
	)
	flag.Parse()

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := sql.Open(sqliteshim.ShimName, *dsn)
	if err != nil {
		log.Fatal(err)
	}

	persistence.RegisterModel((*platform.User)(nil))
	persistence.RegisterModel((*platform.SearchRecord)(nil))
	persistence.RegisterModel((*platform.SearchBatch)(nil))
	persistence.RegisterModel((*platform.AccountRequest)(nil))

	client, err := persistence.New(persistenceConfig{dsn: *dsn}, db, sqlitedialect.New())
	if err != nil {
		log.Fatal(err)
	}

	migrationsFS, err := fs.Sub(platform.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		log.Fatal(err)
	}
	client.RegisterDialectMigrations(migrationsFS)
	if err := client.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	repo := platform.NewRepositoryManager(client.DB())
	if err := repo.Validate(); err != nil {
		log.Fatal(err)
	}

	dispatcher := notify.NewDispatcher(notify.NewConsole(os.Stdout), nil)

	handler := platform.NewProvisionAccountHandler(repo).
		WithDispatcher(dispatcher)

	var response *platform.ProvisionAccountResponse
	err = handler.Execute(ctx, platform.ProvisionAccountMessage{
		FirstName: *firstName,
		LastName:  *lastName,
		Email:     *email,
		Role:      platform.RoleAdmin,
		Actor:     platform.ActorRef{Type: "cli"},
		OnResponse: func(r *platform.ProvisionAccountResponse) {
			response = r
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	dispatcher.Wait()

	if response != nil {
		fmt.Printf("admin account created: %s\n", response.User.Email)
		fmt.Printf("temporary password: %s\n", response.TempPassword)
	}
}

// persistenceConfig satisfies the persistence client with CLI flag values.
type persistenceConfig struct {
	dsn string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return "sqlite" }
func (c persistenceConfig) GetServer() string             { return "" }
func (c persistenceConfig) GetDatabase() string           { return "" }
func (c persistenceConfig) GetDSN() string                { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "" }
