package platform

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Searches stores per-user verification lookups.
type Searches interface {
	repository.Repository[*SearchRecord]

	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SearchRecord, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type searches struct {
	repository.Repository[*SearchRecord]
	db *bun.DB
}

var _ Searches = (*searches)(nil)

func NewSearchesRepository(db *bun.DB) Searches {
	repo := repository.NewRepository[*SearchRecord](db, repository.ModelHandlers[*SearchRecord]{
		NewRecord: func() *SearchRecord { return &SearchRecord{} },
		GetID: func(r *SearchRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *SearchRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &searches{
		Repository: repo,
		db:         db,
	}
}

func (s *searches) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*SearchRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *searches) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.db.NewSelect().
		Model((*SearchRecord)(nil)).
		Where("?TableAlias.user_id = ?", userID.String()).
		Count(ctx)
}

// Batches stores bulk verification runs.
type Batches interface {
	repository.Repository[*SearchBatch]

	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SearchBatch, error)
	SetStatus(ctx context.Context, id uuid.UUID, status BatchStatus) (*SearchBatch, error)
}

type batches struct {
	repository.Repository[*SearchBatch]
	db *bun.DB
}

var _ Batches = (*batches)(nil)

func NewBatchesRepository(db *bun.DB) Batches {
	repo := repository.NewRepository[*SearchBatch](db, repository.ModelHandlers[*SearchBatch]{
		NewRecord: func() *SearchBatch { return &SearchBatch{} },
		GetID: func(r *SearchBatch) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *SearchBatch, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &batches{
		Repository: repo,
		db:         db,
	}
}

func (b *batches) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SearchBatch, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []*SearchBatch
	err := b.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (b *batches) SetStatus(ctx context.Context, id uuid.UUID, status BatchStatus) (*SearchBatch, error) {
	record := &SearchBatch{ID: id, Status: status}
	return b.Repository.Update(ctx, record,
		repository.UpdateByID(id.String()),
	)
}

// AccountRequests stores self-service access applications before an
// administrator provisions an account from them.
type AccountRequests interface {
	repository.Repository[*AccountRequest]

	ListOpen(ctx context.Context) ([]*AccountRequest, error)
}

type accountRequests struct {
	repository.Repository[*AccountRequest]
	db *bun.DB
}

var _ AccountRequests = (*accountRequests)(nil)

func NewAccountRequestsRepository(db *bun.DB) AccountRequests {
	repo := repository.NewRepository[*AccountRequest](db, repository.ModelHandlers[*AccountRequest]{
		NewRecord: func() *AccountRequest { return &AccountRequest{} },
		GetID: func(r *AccountRequest) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *AccountRequest, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountRequests{
		Repository: repo,
		db:         db,
	}
}

func (a *accountRequests) ListOpen(ctx context.Context) ([]*AccountRequest, error) {
	var records []*AccountRequest
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.resolved_at IS NULL").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
