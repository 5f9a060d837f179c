package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/deceasedstatus/platform/verify"
)

// SearchService runs single verification lookups for a signed-in account
// and records every lookup against it. Provider calls share a rate limiter
// with bulk processing so one upload cannot starve interactive searches.
type SearchService struct {
	repo     RepositoryManager
	provider verify.Provider
	limiter  *rate.Limiter
	logger   Logger
}

func NewSearchService(repo RepositoryManager, provider verify.Provider) *SearchService {
	return &SearchService{
		repo:     repo,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		logger:   defLogger{},
	}
}

// WithRateLimit overrides the provider call budget.
func (s *SearchService) WithRateLimit(limit rate.Limit, burst int) *SearchService {
	s.limiter = rate.NewLimiter(limit, burst)
	return s
}

func (s *SearchService) WithLogger(l Logger) *SearchService {
	s.logger = normalizeLogger(l)
	return s
}

// Limiter exposes the shared provider budget for the batch runner.
func (s *SearchService) Limiter() *rate.Limiter {
	return s.limiter
}

// Lookup answers one query and persists the result as a SearchRecord owned
// by the account.
func (s *SearchService) Lookup(ctx context.Context, userID uuid.UUID, q verify.Query) (*SearchRecord, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during lookup")
	default:
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryRateLimit, "lookup rate limit wait aborted")
	}

	result, err := s.provider.Lookup(ctx, q)
	if err != nil {
		return nil, err
	}

	record := &SearchRecord{
		ID:          uuid.New(),
		UserID:      userID,
		FirstName:   q.FirstName,
		MiddleName:  q.MiddleName,
		LastName:    q.LastName,
		DateOfBirth: q.DateOfBirth,
		City:        q.City,
		State:       q.State,
		Deceased:    result.Deceased,
		MatchScore:  result.MatchScore,
		Source:      result.Source,
	}

	created, err := s.repo.Searches().Create(ctx, record)
	if err != nil {
		// The answer is still good; losing the history row should not fail
		// the lookup.
		s.logger.Warn("failed to persist search record: %v", err)
		return record, nil
	}

	return created, nil
}

// History returns the account's recent lookups.
func (s *SearchService) History(ctx context.Context, userID uuid.UUID, limit int) ([]*SearchRecord, error) {
	return s.repo.Searches().ListByUser(ctx, userID, limit)
}

// waitWithDeadline applies the limiter with a hard cap so a stuck limiter
// cannot hold a batch forever.
func waitWithDeadline(ctx context.Context, limiter *rate.Limiter, cap time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cap)
	defer cancel()
	return limiter.Wait(ctx)
}
