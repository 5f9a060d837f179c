package platform

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SetInitialPasswordMessage completes the forced reset that every temporary
// credential starts with. It only succeeds while must_reset is raised; the
// flag is cleared in the same statement that stores the new hash, so two
// concurrent submissions cannot both win.
type SetInitialPasswordMessage struct {
	UserID          uuid.UUID `json:"user_id"`
	NewPassword     string    `json:"new_password"`
	ConfirmPassword string    `json:"confirm_password"`
	OnResponse      func(user *User)
}

func (e SetInitialPasswordMessage) Type() string { return "account.password.set" }

type SetInitialPasswordHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewSetInitialPasswordHandler creates a handler with sane defaults.
func NewSetInitialPasswordHandler(repo RepositoryManager) *SetInitialPasswordHandler {
	return &SetInitialPasswordHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password events.
func (h *SetInitialPasswordHandler) WithActivitySink(sink ActivitySink) *SetInitialPasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SetInitialPasswordHandler) WithLogger(logger Logger) *SetInitialPasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SetInitialPasswordHandler) Execute(ctx context.Context, event SetInitialPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during initial password set",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SetInitialPasswordHandler) execute(ctx context.Context, event SetInitialPasswordMessage) error {
	var updated *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := checkNewPassword(event.NewPassword, event.ConfirmPassword); err != nil {
		return err
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().FindByIDTx(ctx, tx, event.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound.WithMetadata(map[string]any{"id": event.UserID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for password set")
		}

		if !user.MustReset {
			return ErrResetNotRequired
		}

		// The temporary credential cannot be kept as the permanent one.
		if err := ComparePasswordAndHash(event.NewPassword, user.PasswordHash); err == nil {
			return ErrPasswordReuse
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
		}

		updated, err = h.repo.Users().SetPasswordIfMustReset(ctx, user.ID, hash)
		if err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set initial password")
	}

	h.recordActivity(ctx, updated)

	if event.OnResponse != nil {
		event.OnResponse(updated)
	}

	return nil
}

func (h *SetInitialPasswordHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordSet,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"email": user.Email},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password set: %v", err)
	}
}

// ChangePasswordMessage rotates the password of an account that is not under
// a forced reset. The current password has to check out first.
type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"user_id"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
	ConfirmPassword string    `json:"confirm_password"`
	OnResponse      func(user *User)
}

func (e ChangePasswordMessage) Type() string { return "account.password.change" }

type ChangePasswordHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	var updated *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := checkNewPassword(event.NewPassword, event.ConfirmPassword); err != nil {
		return err
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().FindByIDTx(ctx, tx, event.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound.WithMetadata(map[string]any{"id": event.UserID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account for password change")
		}

		if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
			return ErrInvalidCredentials
		}

		if event.NewPassword == event.CurrentPassword {
			return ErrPasswordReuse
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
		}

		updated, err = h.repo.Users().ReplacePassword(ctx, user.ID, hash, false)
		if err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change password")
	}

	if updated != nil {
		event2 := ActivityEvent{
			EventType: ActivityEventPasswordChanged,
			Actor: ActorRef{
				ID:   updated.ID.String(),
				Type: "user",
			},
			UserID:     updated.ID.String(),
			Metadata:   map[string]any{"email": updated.Email},
			OccurredAt: time.Now(),
		}
		if err := normalizeActivitySink(h.activity).Record(ctx, event2); err != nil {
			h.logger.Warn("activity sink error during password change: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(updated)
	}

	return nil
}

// checkNewPassword runs the confirmation and strength gates shared by both
// password flows. Strength failures carry every unmet requirement so the
// form can show them all at once.
func checkNewPassword(newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}

	strength := ValidatePasswordStrength(newPassword)
	if !strength.IsValid {
		return goerrors.New("password does not meet requirements", goerrors.CategoryValidation).
			WithTextCode("WEAK_PASSWORD").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"requirements": strength.Errors})
	}

	return nil
}
