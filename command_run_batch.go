package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/deceasedstatus/platform/verify"
)

// RunBatchMessage starts a bulk verification run. The batch record is
// created synchronously and returned PENDING; rows are processed in the
// background and the UI polls the batch status.
type RunBatchMessage struct {
	UserID     uuid.UUID      `json:"user_id"`
	FileName   string         `json:"file_name"`
	Queries    []verify.Query `json:"queries"`
	OnResponse func(batch *SearchBatch)
}

func (e RunBatchMessage) Type() string { return "search.batch.run" }

type RunBatchHandler struct {
	repo     RepositoryManager
	provider verify.Provider
	limiter  *rate.Limiter
	logger   Logger

	// onDone fires after background processing finishes, successful or not.
	onDone func(batchID uuid.UUID)
}

func NewRunBatchHandler(repo RepositoryManager, provider verify.Provider) *RunBatchHandler {
	return &RunBatchHandler{
		repo:     repo,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		logger:   defLogger{},
	}
}

// WithLimiter shares a provider budget with the interactive search path.
func (h *RunBatchHandler) WithLimiter(limiter *rate.Limiter) *RunBatchHandler {
	if limiter != nil {
		h.limiter = limiter
	}
	return h
}

func (h *RunBatchHandler) WithLogger(logger Logger) *RunBatchHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithDoneHook registers a callback that fires once a batch has been fully
// processed. Callers use it for follow-up notifications; tests use it to
// wait for the background goroutine.
func (h *RunBatchHandler) WithDoneHook(fn func(batchID uuid.UUID)) *RunBatchHandler {
	h.onDone = fn
	return h
}

func (h *RunBatchHandler) Execute(ctx context.Context, event RunBatchMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during batch start",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RunBatchHandler) execute(ctx context.Context, event RunBatchMessage) error {
	if len(event.Queries) == 0 {
		return goerrors.New("batch has no rows to process", goerrors.CategoryValidation).
			WithTextCode("EMPTY_BATCH").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	batch := &SearchBatch{
		ID:        uuid.New(),
		UserID:    event.UserID,
		FileName:  event.FileName,
		Status:    BatchPending,
		TotalRows: len(event.Queries),
	}

	created, err := h.repo.Batches().Create(ctx, batch)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create batch record")
	}

	go h.process(created.ID, event.UserID, event.Queries)

	if event.OnResponse != nil {
		event.OnResponse(created)
	}

	return nil
}

// process runs detached from the request: the upload response returns
// immediately while rows grind through the provider budget.
func (h *RunBatchHandler) process(batchID uuid.UUID, userID uuid.UUID, queries []verify.Query) {
	ctx := context.Background()

	if _, err := h.repo.Batches().SetStatus(ctx, batchID, BatchProcessing); err != nil {
		h.logger.Error("failed to mark batch processing: %v", err)
	}

	processed := 0
	failed := 0

	for _, q := range queries {
		if err := waitWithDeadline(ctx, h.limiter, time.Minute); err != nil {
			h.logger.Error("batch rate limit wait failed: %v", err)
			failed++
			continue
		}

		result, err := h.provider.Lookup(ctx, q)
		if err != nil {
			h.logger.Warn("batch row lookup failed: %v", err)
			failed++
			continue
		}

		record := &SearchRecord{
			ID:          uuid.New(),
			UserID:      userID,
			BatchID:     &batchID,
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

		if _, err := h.repo.Searches().Create(ctx, record); err != nil {
			h.logger.Warn("failed to persist batch row: %v", err)
			failed++
			continue
		}

		processed++
	}

	status := BatchCompleted
	if processed == 0 {
		status = BatchFailed
	}

	final := &SearchBatch{
		ID:            batchID,
		Status:        status,
		ProcessedRows: processed,
		FailedRows:    failed,
	}

	if _, err := h.repo.Batches().Update(ctx, final, repository.UpdateByID(batchID.String())); err != nil {
		h.logger.Error("failed to finalize batch: %v", err)
	}

	if h.onDone != nil {
		h.onDone(batchID)
	}
}
