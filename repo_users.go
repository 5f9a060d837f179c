package platform

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// One-time transitions run as single conditional updates so two racing
// requests cannot both succeed. The RETURNING clause tells us whether the
// precondition still held.
var setPasswordIfMustResetSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"must_reset" = FALSE,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."must_reset" = TRUE
RETURNING *;`

var replacePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"must_reset" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

// Users is the credential store for accounts.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	// SetPasswordIfMustReset clears the forced-reset flag and replaces the
	// hash in one conditional update; ErrInvalidState reports a stale
	// precondition (another request already completed the transition).
	SetPasswordIfMustReset(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error)

	// ReplacePassword swaps the hash unconditionally and sets the
	// forced-reset flag to mustReset (true when issuing a temporary
	// password, false for a self-service change).
	ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string, mustReset bool) (*User, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
	SetRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error)
	SetApproval(ctx context.Context, id uuid.UUID, status ApprovalStatus, active bool) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error

	// DeleteCascadeTx removes the account and its owned search records and
	// batches inside the caller's transaction.
	DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	ListAll(ctx context.Context) ([]*User, error)
	ListPendingApproval(ctx context.Context) ([]*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the Users store on top of the shared bun
// repository plumbing.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}
	record.EnsureApprovalStatus()
	return record, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	record.EnsureApprovalStatus()
	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) SetPasswordIfMustReset(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, setPasswordIfMustResetSQL, passwordHash, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		// Either the id is gone or must_reset was already cleared; the
		// caller distinguishes by re-reading.
		return nil, ErrInvalidState.WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string, mustReset bool) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, replacePasswordSQL, passwordHash, mustReset, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	record := &User{ID: id, IsActive: active}
	return a.Repository.Update(ctx, record,
		repository.UpdateByID(id.String()),
	)
}

func (a *users) SetRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error) {
	record := &User{ID: id, Role: role}
	return a.Repository.Update(ctx, record,
		repository.UpdateByID(id.String()),
	)
}

func (a *users) SetApproval(ctx context.Context, id uuid.UUID, status ApprovalStatus, active bool) (*User, error) {
	record := &User{ID: id, ApprovalStatus: status, IsActive: active}
	return a.Repository.Update(ctx, record,
		repository.UpdateByID(id.String()),
	)
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.Update(ctx, record,
		repository.UpdateByID(user.ID.String()),
	)
	return err
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	// NOTE: the ORM update path won't null out login_attempt_at, so reset
	// the attempt counters with raw SQL.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID.String()).Exec(ctx)

	return err
}

func (a *users) DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*SearchRecord)(nil)).
		Where("?TableAlias.user_id = ?", id.String()).
		Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*SearchBatch)(nil)).
		Where("?TableAlias.user_id = ?", id.String()).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) ListAll(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		r.EnsureApprovalStatus()
	}
	return records, nil
}

func (a *users) ListPendingApproval(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.approval_status = ?", ApprovalPending).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureApprovalStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
