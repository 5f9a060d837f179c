package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/deceasedstatus/platform/notify"
)

// IssueTempPasswordMessage replaces the account's credential with a fresh
// temporary password and raises the forced-reset flag. It backs both the
// self-service forgot-password flow and the admin "resend credentials"
// action.
//
// When no account matches the email the handler reports success with
// Issued=false instead of an error, so the public endpoint's response never
// reveals whether an address is registered.
type IssueTempPasswordMessage struct {
	Email string `json:"email"`
	Actor ActorRef

	// RequireActive skips deactivated accounts. The self service flow sets
	// it so a parked account cannot be revived through forgot-password; the
	// admin resend action leaves it unset.
	RequireActive bool

	OnResponse func(resp *IssueTempPasswordResponse)
}

func (e IssueTempPasswordMessage) Type() string { return "account.temp_password.issue" }

type IssueTempPasswordResponse struct {
	Issued bool
	User   *User
	// TempPassword is plaintext, handed to the notifier and then dropped.
	TempPassword string
}

type IssueTempPasswordHandler struct {
	repo       RepositoryManager
	dispatcher *notify.Dispatcher
	activity   ActivitySink
	logger     Logger
}

func NewIssueTempPasswordHandler(repo RepositoryManager) *IssueTempPasswordHandler {
	return &IssueTempPasswordHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *IssueTempPasswordHandler) WithDispatcher(d *notify.Dispatcher) *IssueTempPasswordHandler {
	h.dispatcher = d
	return h
}

func (h *IssueTempPasswordHandler) WithActivitySink(sink ActivitySink) *IssueTempPasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *IssueTempPasswordHandler) WithLogger(logger Logger) *IssueTempPasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *IssueTempPasswordHandler) Execute(ctx context.Context, event IssueTempPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during temporary password issue",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueTempPasswordHandler) execute(ctx context.Context, event IssueTempPasswordMessage) error {
	resp := &IssueTempPasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	tempPassword := GenerateTemporaryPassword()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// No account. The caller still reports success.
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for credential reissue")
		}

		if event.RequireActive && !user.IsActive {
			return nil
		}

		hash, err := HashPassword(tempPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash temporary password")
		}

		updated, err := h.repo.Users().ReplacePassword(ctx, user.ID, hash, true)
		if err != nil {
			return err
		}

		resp.Issued = true
		resp.User = updated
		resp.TempPassword = tempPassword

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "temporary password issue failed")
	}

	if resp.Issued {
		h.recordActivity(ctx, resp.User, event.Actor)
		h.deliver(resp.User, tempPassword)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *IssueTempPasswordHandler) recordActivity(ctx context.Context, user *User, actor ActorRef) {
	if actor.Type == "" {
		actor = ActorRef{ID: user.ID.String(), Type: "user"}
	}

	event := ActivityEvent{
		EventType:  ActivityEventTempPasswordIssued,
		Actor:      actor,
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during credential reissue: %v", err)
	}
}

func (h *IssueTempPasswordHandler) deliver(user *User, tempPassword string) {
	if h.dispatcher == nil {
		return
	}

	h.dispatcher.Dispatch(notify.Message{
		Kind:      notify.KindTempPassword,
		Recipient: user.Email,
		Subject:   "Your temporary password",
		Payload: map[string]string{
			"name":          user.FullName(),
			"temp_password": tempPassword,
		},
	})
}
