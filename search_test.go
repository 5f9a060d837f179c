package platform_test

import (
	"context"
	"errors"
	"testing"
	"time"

	platform "github.com/deceasedstatus/platform"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deceasedstatus/platform/verify"
)

func sampleQuery() verify.Query {
	return verify.Query{
		FirstName:   "John",
		LastName:    "Smith",
		DateOfBirth: "1950-03-14",
		City:        "Columbus",
		State:       "OH",
	}
}

func TestSearchServiceLookup(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("persists the lookup against the account", func(t *testing.T) {
		repo := newFakeRepo()
		provider := staticProvider{result: verify.Result{Deceased: true, MatchScore: 0.93, Source: "registry"}}

		svc := platform.NewSearchService(repo, provider).WithLogger(testLogger{})

		record, err := svc.Lookup(ctx, userID, sampleQuery())
		require.NoError(t, err)
		require.NotNil(t, record)

		assert.Equal(t, userID, record.UserID)
		assert.True(t, record.Deceased)
		assert.Equal(t, 0.93, record.MatchScore)
		assert.Equal(t, "registry", record.Source)
		assert.Nil(t, record.BatchID)

		history, err := svc.History(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, record.ID, history[0].ID)
	})

	t.Run("incomplete query never reaches the provider", func(t *testing.T) {
		repo := newFakeRepo()
		provider := staticProvider{err: errors.New("provider must not be called")}

		svc := platform.NewSearchService(repo, provider).WithLogger(testLogger{})

		q := sampleQuery()
		q.LastName = ""
		_, err := svc.Lookup(ctx, userID, q)
		require.Error(t, err)

		var rich *goerrors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, "INCOMPLETE_QUERY", rich.TextCode)
	})

	t.Run("provider failure is returned to the caller", func(t *testing.T) {
		repo := newFakeRepo()
		provider := staticProvider{err: errors.New("registry unavailable")}

		svc := platform.NewSearchService(repo, provider).WithLogger(testLogger{})

		_, err := svc.Lookup(ctx, userID, sampleQuery())
		require.Error(t, err)
	})

	t.Run("a lost history row does not fail the lookup", func(t *testing.T) {
		repo := &failingSearchesRepo{fakeRepo: newFakeRepo()}

		svc := platform.NewSearchService(repo, staticProvider{result: verify.Result{Source: "mock"}}).
			WithLogger(testLogger{})

		record, err := svc.Lookup(ctx, userID, sampleQuery())
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "mock", record.Source)
	})
}

// failingSearchesRepo rejects every search write.
type failingSearchesRepo struct {
	*fakeRepo
}

func (f *failingSearchesRepo) Searches() platform.Searches {
	return &failingSearches{}
}

type failingSearches struct {
	platform.Searches
}

func (f *failingSearches) Create(ctx context.Context, record *platform.SearchRecord, criteria ...repository.InsertCriteria) (*platform.SearchRecord, error) {
	return nil, errors.New("disk full")
}

func TestRunBatchHandler(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	queries := []verify.Query{sampleQuery(), {
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: "1945-11-02",
		City:        "Austin",
		State:       "TX",
	}}

	t.Run("creates the batch and processes rows in the background", func(t *testing.T) {
		repo := newFakeRepo()
		done := make(chan uuid.UUID, 1)

		handler := platform.NewRunBatchHandler(repo, staticProvider{result: verify.Result{Deceased: false, Source: "mock"}}).
			WithLogger(testLogger{})
		handler = handler.WithDoneHook(func(id uuid.UUID) { done <- id })

		var created *platform.SearchBatch
		err := handler.Execute(ctx, platform.RunBatchMessage{
			UserID:     userID,
			FileName:   "upload.csv",
			Queries:    queries,
			OnResponse: func(b *platform.SearchBatch) { created = b },
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, platform.BatchPending, created.Status)
		assert.Equal(t, 2, created.TotalRows)

		select {
		case id := <-done:
			assert.Equal(t, created.ID, id)
		case <-time.After(5 * time.Second):
			t.Fatal("batch never finished")
		}

		final := repo.batches.get(created.ID)
		require.NotNil(t, final)
		assert.Equal(t, platform.BatchCompleted, final.Status)
		assert.Equal(t, 2, final.ProcessedRows)
		assert.Zero(t, final.FailedRows)

		rows, err := repo.searches.ListByUser(ctx, userID, 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, row := range rows {
			require.NotNil(t, row.BatchID)
			assert.Equal(t, created.ID, *row.BatchID)
		}
	})

	t.Run("a batch where every row fails is marked failed", func(t *testing.T) {
		repo := newFakeRepo()
		done := make(chan uuid.UUID, 1)

		handler := platform.NewRunBatchHandler(repo, staticProvider{err: errors.New("registry unavailable")}).
			WithLogger(testLogger{})
		handler = handler.WithDoneHook(func(id uuid.UUID) { done <- id })

		var created *platform.SearchBatch
		err := handler.Execute(ctx, platform.RunBatchMessage{
			UserID:     userID,
			FileName:   "upload.csv",
			Queries:    queries,
			OnResponse: func(b *platform.SearchBatch) { created = b },
		})
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("batch never finished")
		}

		final := repo.batches.get(created.ID)
		require.NotNil(t, final)
		assert.Equal(t, platform.BatchFailed, final.Status)
		assert.Equal(t, 2, final.FailedRows)
		assert.Zero(t, final.ProcessedRows)
	})

	t.Run("an empty batch is rejected up front", func(t *testing.T) {
		repo := newFakeRepo()
		handler := platform.NewRunBatchHandler(repo, staticProvider{}).WithLogger(testLogger{})

		err := handler.Execute(ctx, platform.RunBatchMessage{UserID: userID})
		require.Error(t, err)

		var rich *goerrors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, "EMPTY_BATCH", rich.TextCode)
	})
}
