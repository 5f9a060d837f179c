package platform_test

import (
	"context"
	"testing"

	platform "github.com/deceasedstatus/platform"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deceasedstatus/platform/notify"
)

func adminActor() platform.ActorRef {
	return platform.ActorRef{ID: uuid.NewString(), Type: "user"}
}

func pendingUser(t *testing.T) *platform.User {
	t.Helper()
	user := seedAccount(t, "Temp-Secret-99!")
	user.ApprovalStatus = platform.ApprovalPending
	user.IsActive = false
	user.MustReset = true
	return user
}

func TestAccountAdminSetActive(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivates and reactivates", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		repo := newFakeRepo(user)
		sink := &memorySink{}

		admin := platform.NewAccountAdmin(repo).
			WithLogger(testLogger{}).
			WithActivitySink(sink)

		updated, err := admin.SetActive(ctx, adminActor(), user.ID, false)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)

		updated, err = admin.SetActive(ctx, adminActor(), user.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.IsActive)

		_, ok := sink.find(platform.ActivityEventStatusChanged)
		assert.True(t, ok)
	})

	t.Run("an admin cannot deactivate themselves", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.Role = platform.RoleAdmin
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		self := platform.ActorRef{ID: user.ID.String(), Type: "user"}
		_, err := admin.SetActive(ctx, self, user.ID, false)
		assert.ErrorIs(t, err, platform.ErrSelfAction)
	})

	t.Run("rejected accounts cannot be reactivated", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.ApprovalStatus = platform.ApprovalRejected
		user.IsActive = false
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		_, err := admin.SetActive(ctx, adminActor(), user.ID, true)
		require.Error(t, err)

		var rich *goerrors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, "INVALID_ACCOUNT_STATE", rich.TextCode)
	})

	t.Run("unknown target reports not found", func(t *testing.T) {
		repo := newFakeRepo()
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		_, err := admin.SetActive(ctx, adminActor(), uuid.New(), false)
		require.Error(t, err)

		var rich *goerrors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, "ACCOUNT_NOT_FOUND", rich.TextCode)
	})
}

func TestAccountAdminSetRole(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes and demotes", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		updated, err := admin.SetRole(ctx, adminActor(), user.ID, platform.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, platform.RoleAdmin, updated.Role)

		updated, err = admin.SetRole(ctx, adminActor(), user.ID, platform.RoleUser)
		require.NoError(t, err)
		assert.Equal(t, platform.RoleUser, updated.Role)
	})

	t.Run("an admin cannot demote themselves", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.Role = platform.RoleAdmin
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		self := platform.ActorRef{ID: user.ID.String(), Type: "user"}
		_, err := admin.SetRole(ctx, self, user.ID, platform.RoleUser)
		assert.ErrorIs(t, err, platform.ErrSelfAction)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		_, err := admin.SetRole(ctx, adminActor(), user.ID, "OWNER")
		require.Error(t, err)
	})
}

func TestAccountAdminDecide(t *testing.T) {
	ctx := context.Background()

	t.Run("approval activates the account", func(t *testing.T) {
		user := pendingUser(t)
		repo := newFakeRepo(user)
		sink := &memorySink{}

		admin := platform.NewAccountAdmin(repo).
			WithLogger(testLogger{}).
			WithActivitySink(sink)

		updated, err := admin.Decide(ctx, adminActor(), user.ID, true)
		require.NoError(t, err)
		assert.Equal(t, platform.ApprovalApproved, updated.ApprovalStatus)
		assert.True(t, updated.IsActive)
		assert.True(t, updated.MustReset)

		_, ok := sink.find(platform.ActivityEventApprovalDecided)
		assert.True(t, ok)
	})

	t.Run("rejection deactivates the account", func(t *testing.T) {
		user := pendingUser(t)
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		updated, err := admin.Decide(ctx, adminActor(), user.ID, false)
		require.NoError(t, err)
		assert.Equal(t, platform.ApprovalRejected, updated.ApprovalStatus)
		assert.False(t, updated.IsActive)
	})

	t.Run("a decision cannot be made twice", func(t *testing.T) {
		user := pendingUser(t)
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		_, err := admin.Decide(ctx, adminActor(), user.ID, true)
		require.NoError(t, err)

		_, err = admin.Decide(ctx, adminActor(), user.ID, false)
		require.Error(t, err)

		var rich *goerrors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, "INVALID_ACCOUNT_STATE", rich.TextCode)
	})

	t.Run("the applicant is notified of the decision", func(t *testing.T) {
		user := pendingUser(t)
		repo := newFakeRepo(user)
		notifier := &memoryNotifier{}
		dispatcher := notify.NewDispatcher(notifier, nil)

		admin := platform.NewAccountAdmin(repo).
			WithLogger(testLogger{}).
			WithDispatcher(dispatcher)

		_, err := admin.Decide(ctx, adminActor(), user.ID, false)
		require.NoError(t, err)
		dispatcher.Wait()

		messages := notifier.sent()
		require.Len(t, messages, 1)
		assert.Equal(t, notify.KindApprovalDecision, messages[0].Kind)
		assert.Equal(t, user.Email, messages[0].Recipient)
		assert.Equal(t, "rejected", messages[0].Payload["decision"])
	})
}

func TestAccountAdminDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the account", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		repo := newFakeRepo(user)
		sink := &memorySink{}

		admin := platform.NewAccountAdmin(repo).
			WithLogger(testLogger{}).
			WithActivitySink(sink)

		err := admin.Delete(ctx, adminActor(), user.ID)
		require.NoError(t, err)

		_, err = repo.Users().FindByID(ctx, user.ID)
		require.Error(t, err)

		event, ok := sink.find(platform.ActivityEventAccountDeleted)
		require.True(t, ok)
		assert.Equal(t, user.Email, event.Metadata["email"])
	})

	t.Run("an admin cannot delete themselves", func(t *testing.T) {
		user := seedAccount(t, "Temp-Secret-99!")
		user.Role = platform.RoleAdmin
		repo := newFakeRepo(user)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		self := platform.ActorRef{ID: user.ID.String(), Type: "user"}
		err := admin.Delete(ctx, self, user.ID)
		assert.ErrorIs(t, err, platform.ErrSelfAction)
	})
}

func TestAccountAdminResendCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("reissues a temporary password for the target", func(t *testing.T) {
		user := seedAccount(t, "Original-Pass1!")
		repo := newFakeRepo(user)
		notifier := &memoryNotifier{}
		dispatcher := notify.NewDispatcher(notifier, nil)

		admin := platform.NewAccountAdmin(repo).
			WithLogger(testLogger{}).
			WithDispatcher(dispatcher)

		resp, err := admin.ResendCredentials(ctx, adminActor(), user.ID)
		require.NoError(t, err)
		require.NotNil(t, resp)
		require.True(t, resp.Issued)
		assert.True(t, resp.User.MustReset)

		dispatcher.Wait()
		require.Len(t, notifier.sent(), 1)
	})
}

func TestAccountAdminListing(t *testing.T) {
	ctx := context.Background()

	t.Run("pending list only contains undecided accounts", func(t *testing.T) {
		approved := seedAccount(t, "Temp-Secret-99!")
		pending := pendingUser(t)
		pending.Email = "pending@example.com"

		repo := newFakeRepo(approved, pending)
		admin := platform.NewAccountAdmin(repo).WithLogger(testLogger{})

		all, err := admin.ListAccounts(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		waiting, err := admin.ListPendingApprovals(ctx)
		require.NoError(t, err)
		require.Len(t, waiting, 1)
		assert.Equal(t, pending.ID, waiting[0].ID)
	})
}
