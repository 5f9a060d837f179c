package platform

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Searches() Searches
	Batches() Batches
	AccountRequests() AccountRequests
}

type mngr struct {
	db              *bun.DB
	users           Users
	searches        Searches
	batches         Batches
	accountRequests AccountRequests
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:              db,
		users:           NewUsersRepository(db),
		searches:        NewSearchesRepository(db),
		batches:         NewBatchesRepository(db),
		accountRequests: NewAccountRequestsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.searches == nil {
		return errors.New("repository searches should be initialized")
	}

	if m.batches == nil {
		return errors.New("repository batches should be initialized")
	}

	if m.accountRequests == nil {
		return errors.New("repository accountRequests should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Searches() Searches {
	return m.searches
}

func (m mngr) Batches() Batches {
	return m.batches
}

func (m mngr) AccountRequests() AccountRequests {
	return m.accountRequests
}
