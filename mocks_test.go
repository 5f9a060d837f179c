package platform_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	platform "github.com/deceasedstatus/platform"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/deceasedstatus/platform/notify"
	"github.com/deceasedstatus/platform/verify"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// fakeUsers is an in-memory credential store. The embedded interface covers
// the generic repository surface; anything the code under test actually
// touches is overridden below.
type fakeUsers struct {
	platform.Users

	mu   sync.Mutex
	byID map[uuid.UUID]*platform.User
}

func newFakeUsers(seed ...*platform.User) *fakeUsers {
	f := &fakeUsers{byID: map[uuid.UUID]*platform.User{}}
	for _, u := range seed {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) lookupByEmail(email string) *platform.User {
	email = platform.NormalizeEmail(email)
	for _, u := range f.byID {
		if platform.NormalizeEmail(u.Email) == email {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u := f.lookupByEmail(email); u != nil {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*platform.User, error) {
	return f.GetByEmail(ctx, email)
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*platform.User, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeUsers) Register(ctx context.Context, user *platform.User) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *platform.User) (*platform.User, error) {
	return f.Register(ctx, user)
}

func (f *fakeUsers) SetPasswordIfMustReset(ctx context.Context, id uuid.UUID, passwordHash string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	if !u.MustReset {
		return nil, platform.ErrInvalidState
	}
	u.PasswordHash = passwordHash
	u.MustReset = false
	return u, nil
}

func (f *fakeUsers) ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string, mustReset bool) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.PasswordHash = passwordHash
	u.MustReset = mustReset
	return u, nil
}

func (f *fakeUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.IsActive = active
	return u, nil
}

func (f *fakeUsers) SetRole(ctx context.Context, id uuid.UUID, role platform.UserRole) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.Role = role
	return u, nil
}

func (f *fakeUsers) SetApproval(ctx context.Context, id uuid.UUID, status platform.ApprovalStatus, active bool) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.ApprovalStatus = status
	u.IsActive = active
	return u, nil
}

func (f *fakeUsers) TrackAttemptedLogin(ctx context.Context, user *platform.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now
	return nil
}

func (f *fakeUsers) TrackSuccessfulLogin(ctx context.Context, user *platform.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	user.LoggedInAt = &now
	return nil
}

func (f *fakeUsers) DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.NewRecordNotFound()
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUsers) ListAll(ctx context.Context) ([]*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*platform.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) ListPendingApproval(ctx context.Context) ([]*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*platform.User
	for _, u := range f.byID {
		if u.ApprovalStatus == platform.ApprovalPending {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeSearches struct {
	platform.Searches

	mu      sync.Mutex
	records []*platform.SearchRecord
}

func (f *fakeSearches) Create(ctx context.Context, record *platform.SearchRecord, criteria ...repository.InsertCriteria) (*platform.SearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return record, nil
}

func (f *fakeSearches) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*platform.SearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*platform.SearchRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSearches) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	records, _ := f.ListByUser(ctx, userID, 0)
	return len(records), nil
}

type fakeBatches struct {
	platform.Batches

	mu      sync.Mutex
	batches map[uuid.UUID]*platform.SearchBatch
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{batches: map[uuid.UUID]*platform.SearchBatch{}}
}

func (f *fakeBatches) Create(ctx context.Context, record *platform.SearchBatch, criteria ...repository.InsertCriteria) (*platform.SearchBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[record.ID] = record
	return record, nil
}

func (f *fakeBatches) SetStatus(ctx context.Context, id uuid.UUID, status platform.BatchStatus) (*platform.SearchBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	b.Status = status
	return b, nil
}

func (f *fakeBatches) Update(ctx context.Context, record *platform.SearchBatch, criteria ...repository.UpdateCriteria) (*platform.SearchBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[record.ID]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	b.Status = record.Status
	b.ProcessedRows = record.ProcessedRows
	b.FailedRows = record.FailedRows
	return b, nil
}

func (f *fakeBatches) get(id uuid.UUID) *platform.SearchBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[id]
}

type fakeAccountRequests struct {
	platform.AccountRequests

	mu       sync.Mutex
	requests []*platform.AccountRequest
}

func (f *fakeAccountRequests) Create(ctx context.Context, record *platform.AccountRequest, criteria ...repository.InsertCriteria) (*platform.AccountRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, record)
	return record, nil
}

func (f *fakeAccountRequests) ListOpen(ctx context.Context) ([]*platform.AccountRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*platform.AccountRequest
	for _, r := range f.requests {
		if r.ResolvedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeRepo hands the fakes out behind the RepositoryManager interface and
// runs "transactions" by just invoking the function.
type fakeRepo struct {
	platform.RepositoryManager

	users    *fakeUsers
	searches *fakeSearches
	batches  *fakeBatches
	requests *fakeAccountRequests
}

func newFakeRepo(seed ...*platform.User) *fakeRepo {
	return &fakeRepo{
		users:    newFakeUsers(seed...),
		searches: &fakeSearches{},
		batches:  newFakeBatches(),
		requests: &fakeAccountRequests{},
	}
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

func (f *fakeRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Users() platform.Users                     { return f.users }
func (f *fakeRepo) Searches() platform.Searches               { return f.searches }
func (f *fakeRepo) Batches() platform.Batches                 { return f.batches }
func (f *fakeRepo) AccountRequests() platform.AccountRequests { return f.requests }

// memorySink collects activity events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []platform.ActivityEvent
}

func (s *memorySink) Record(ctx context.Context, event platform.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) find(t platform.ActivityEventType) (platform.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == t {
			return e, true
		}
	}
	return platform.ActivityEvent{}, false
}

// memoryNotifier records every message it is asked to deliver.
type memoryNotifier struct {
	mu       sync.Mutex
	err      error
	messages []notify.Message
}

func (n *memoryNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *memoryNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// staticProvider answers every query with the same result.
type staticProvider struct {
	result verify.Result
	err    error
}

func (p staticProvider) Lookup(ctx context.Context, q verify.Query) (verify.Result, error) {
	if p.err != nil {
		return verify.Result{}, p.err
	}
	return p.result, nil
}
