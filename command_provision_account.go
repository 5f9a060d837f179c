package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"

	"github.com/deceasedstatus/platform/notify"
)

// ProvisionAccountMessage creates an account with a generated temporary
// password. Admin provisioned accounts come up APPROVED and active; accounts
// born from a self-service access request come up PENDING_APPROVAL and
// inactive until an administrator decides.
type ProvisionAccountMessage struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	RequireApproval bool   `json:"require_approval"`
	UseHashid       bool
	Actor           ActorRef
	OnResponse      func(resp *ProvisionAccountResponse)
}

func (e ProvisionAccountMessage) Type() string { return "account.provision" }

type ProvisionAccountResponse struct {
	User *User
	// TempPassword is plaintext and is never persisted; the caller either
	// shows it to the provisioning admin or lets the notifier deliver it.
	TempPassword string
	Success      bool
}

type ProvisionAccountHandler struct {
	repo       RepositoryManager
	dispatcher *notify.Dispatcher
	activity   ActivitySink
	logger     Logger
}

func NewProvisionAccountHandler(repo RepositoryManager) *ProvisionAccountHandler {
	return &ProvisionAccountHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ProvisionAccountHandler) WithDispatcher(d *notify.Dispatcher) *ProvisionAccountHandler {
	h.dispatcher = d
	return h
}

func (h *ProvisionAccountHandler) WithActivitySink(sink ActivitySink) *ProvisionAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ProvisionAccountHandler) WithLogger(l Logger) *ProvisionAccountHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *ProvisionAccountHandler) Execute(ctx context.Context, event ProvisionAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionAccountHandler) execute(ctx context.Context, event ProvisionAccountMessage) error {
	user := &User{}
	resp := &ProvisionAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	role := event.Role
	if role == "" {
		role = RoleUser
	}
	if !IsValidRole(role) {
		return goerrors.New("unknown or invalid role for account provisioning", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role": event.Role})
	}

	tempPassword := GenerateTemporaryPassword()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil && existing != nil {
			return ErrEmailConflict.WithMetadata(map[string]any{"email": existing.Email})
		} else if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}

		hash, err := HashPassword(tempPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash temporary password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Role = role
		user.MustReset = true

		if event.RequireApproval {
			user.ApprovalStatus = ApprovalPending
			user.IsActive = false
		} else {
			user.ApprovalStatus = ApprovalApproved
			user.IsActive = true
		}

		if event.UseHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account provisioning transaction failed")
	}

	h.recordEvent(ctx, ActivityEvent{
		EventType: ActivityEventAccountProvisioned,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email":           user.Email,
			"role":            user.Role,
			"approval_status": user.ApprovalStatus,
		},
	})

	h.deliverTempPassword(user, tempPassword, event.Actor)

	resp.User = user
	resp.TempPassword = tempPassword
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ProvisionAccountHandler) deliverTempPassword(user *User, tempPassword string, actor ActorRef) {
	h.recordEvent(context.Background(), ActivityEvent{
		EventType: ActivityEventTempPasswordIssued,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"email": user.Email},
	})

	if h.dispatcher == nil {
		return
	}

	h.dispatcher.Dispatch(notify.Message{
		Kind:      notify.KindTempPassword,
		Recipient: user.Email,
		Subject:   "Your account credentials",
		Payload: map[string]string{
			"name":          user.FullName(),
			"temp_password": tempPassword,
		},
	})
}

func (h *ProvisionAccountHandler) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}
