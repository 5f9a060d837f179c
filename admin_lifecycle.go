package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/deceasedstatus/platform/notify"
)

// AccountAdmin is the control surface for administrator mutations. Every
// operation takes the acting admin so self-targeting rules can be enforced:
// an admin can never demote, deactivate, or delete their own account.
type AccountAdmin struct {
	repo       RepositoryManager
	issuer     *IssueTempPasswordHandler
	dispatcher *notify.Dispatcher
	activity   ActivitySink
	logger     Logger
}

func NewAccountAdmin(repo RepositoryManager) *AccountAdmin {
	return &AccountAdmin{
		repo:     repo,
		issuer:   NewIssueTempPasswordHandler(repo),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (s *AccountAdmin) WithDispatcher(d *notify.Dispatcher) *AccountAdmin {
	s.dispatcher = d
	s.issuer = s.issuer.WithDispatcher(d)
	return s
}

func (s *AccountAdmin) WithActivitySink(sink ActivitySink) *AccountAdmin {
	s.activity = normalizeActivitySink(sink)
	s.issuer = s.issuer.WithActivitySink(sink)
	return s
}

func (s *AccountAdmin) WithLogger(logger Logger) *AccountAdmin {
	if logger != nil {
		s.logger = logger
		s.issuer = s.issuer.WithLogger(logger)
	}
	return s
}

// SetActive toggles the account's active flag. Activation is refused for
// rejected accounts; rejection pins them inactive until the decision is
// revisited.
func (s *AccountAdmin) SetActive(ctx context.Context, actor ActorRef, id uuid.UUID, active bool) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during status change")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !active && actor.ID == id.String() {
		return nil, ErrSelfAction
	}

	user, err := s.loadTarget(ctx, id)
	if err != nil {
		return nil, err
	}

	if active && user.ApprovalStatus == ApprovalRejected {
		return nil, ErrInvalidState.WithMetadata(map[string]any{
			"approval_status": user.ApprovalStatus,
		})
	}

	updated, err := s.repo.Users().SetActive(ctx, id, active)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account status")
	}

	s.recordEvent(ctx, ActivityEventStatusChanged, actor, updated, map[string]any{
		"is_active": active,
	})

	return updated, nil
}

// SetRole switches the account between USER and ADMIN.
func (s *AccountAdmin) SetRole(ctx context.Context, actor ActorRef, id uuid.UUID, role UserRole) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during role change")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !IsValidRole(role) {
		return nil, goerrors.New("unknown or invalid role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": role})
	}

	if actor.ID == id.String() && role != RoleAdmin {
		return nil, ErrSelfAction
	}

	if _, err := s.loadTarget(ctx, id); err != nil {
		return nil, err
	}

	updated, err := s.repo.Users().SetRole(ctx, id, role)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account role")
	}

	s.recordEvent(ctx, ActivityEventRoleChanged, actor, updated, map[string]any{
		"role": role,
	})

	return updated, nil
}

// Decide resolves a pending approval. Approval activates the account;
// rejection deactivates it. Accounts that already carry a decision return
// ErrInvalidState.
func (s *AccountAdmin) Decide(ctx context.Context, actor ActorRef, id uuid.UUID, approve bool) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during approval decision")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var updated *User

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().FindByIDTx(ctx, tx, id)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound.WithMetadata(map[string]any{"id": id.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for approval decision")
		}

		if user.ApprovalStatus != ApprovalPending {
			return ErrInvalidState.WithMetadata(map[string]any{
				"approval_status": user.ApprovalStatus,
			})
		}

		status := ApprovalApproved
		active := true
		if !approve {
			status = ApprovalRejected
			active = false
		}

		updated, err = s.repo.Users().SetApproval(ctx, id, status, active)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist approval decision")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "approval decision failed")
	}

	s.recordEvent(ctx, ActivityEventApprovalDecided, actor, updated, map[string]any{
		"approval_status": updated.ApprovalStatus,
		"is_active":       updated.IsActive,
	})

	s.notifyDecision(updated, approve)

	return updated, nil
}

// Delete removes the account and every search record and batch it owns.
func (s *AccountAdmin) Delete(ctx context.Context, actor ActorRef, id uuid.UUID) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account deletion")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if actor.ID == id.String() {
		return ErrSelfAction
	}

	var target *User

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := s.repo.Users().FindByIDTx(ctx, tx, id)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound.WithMetadata(map[string]any{"id": id.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for deletion")
		}
		target = user

		return s.repo.Users().DeleteCascadeTx(ctx, tx, id)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion failed")
	}

	s.recordEvent(ctx, ActivityEventAccountDeleted, actor, target, map[string]any{
		"email": target.Email,
	})

	return nil
}

// ResendCredentials reissues a temporary password for the target account.
func (s *AccountAdmin) ResendCredentials(ctx context.Context, actor ActorRef, id uuid.UUID) (*IssueTempPasswordResponse, error) {
	user, err := s.loadTarget(ctx, id)
	if err != nil {
		return nil, err
	}

	var resp *IssueTempPasswordResponse
	err = s.issuer.Execute(ctx, IssueTempPasswordMessage{
		Email: user.Email,
		Actor: actor,
		OnResponse: func(r *IssueTempPasswordResponse) {
			resp = r
		},
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ListAccounts returns every account, newest first.
func (s *AccountAdmin) ListAccounts(ctx context.Context) ([]*User, error) {
	return s.repo.Users().ListAll(ctx)
}

// ListPendingApprovals returns accounts awaiting a decision, oldest first.
func (s *AccountAdmin) ListPendingApprovals(ctx context.Context) ([]*User, error) {
	return s.repo.Users().ListPendingApproval(ctx)
}

func (s *AccountAdmin) loadTarget(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.Users().FindByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrAccountNotFound.WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve target account")
	}
	return user, nil
}

func (s *AccountAdmin) notifyDecision(user *User, approved bool) {
	if s.dispatcher == nil {
		return
	}

	decision := "approved"
	if !approved {
		decision = "rejected"
	}

	s.dispatcher.Dispatch(notify.Message{
		Kind:      notify.KindApprovalDecision,
		Recipient: user.Email,
		Subject:   "Your access request was " + decision,
		Payload: map[string]string{
			"name":     user.FullName(),
			"decision": decision,
		},
	})
}

func (s *AccountAdmin) recordEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, user *User, metadata map[string]any) {
	if user == nil {
		return
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     user.ID.String(),
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
