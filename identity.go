package platform

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// UserTracker is the slice of the credential store the authenticator needs.
type UserTracker interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Authenticator verifies email and password pairs against the store.
//
// Credential failures are indistinguishable to the caller: a missing account
// and a wrong password both return ErrInvalidCredentials. Account state
// errors (inactive, rejected) only surface after the password checks out.
type Authenticator struct {
	store        UserTracker
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator will create a new Authenticator
func NewAuthenticator(store UserTracker) *Authenticator {
	return &Authenticator{
		store:        store,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (a *Authenticator) WithLogger(l Logger) *Authenticator {
	a.logger = normalizeLogger(l)
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// Authenticate verifies the credentials and returns the account on success.
// A returned account can still carry MustReset; the caller decides whether
// to force the holder through the password reset flow.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			a.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
				"error": ErrInvalidCredentials.Error(),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		a.emitAuthEvent(ctx, ActivityEventLoginFailure, a.actorFor(user), user.ID.String(), map[string]any{
			"email": user.Email,
			"error": ErrTooManyLoginAttempts.Error(),
		})
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := a.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		a.emitAuthEvent(ctx, ActivityEventLoginFailure, a.actorFor(user), user.ID.String(), map[string]any{
			"email": user.Email,
			"error": ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	user.EnsureApprovalStatus()
	if !user.IsActive {
		a.emitAuthEvent(ctx, ActivityEventLoginFailure, a.actorFor(user), user.ID.String(), map[string]any{
			"email":           user.Email,
			"error":           ErrAccountInactive.Error(),
			"approval_status": user.ApprovalStatus,
		})
		return nil, ErrAccountInactive
	}

	// reset the login_attempts counter and login_attempt_at
	if err := a.store.TrackSuccessfulLogin(ctx, user); err != nil {
		a.logger.Error("failed to track successful login: %v", err)
	}

	a.emitAuthEvent(ctx, ActivityEventLoginSuccess, a.actorFor(user), user.ID.String(), map[string]any{
		"email":      user.Email,
		"must_reset": user.MustReset,
	})

	return user, nil
}

func (a *Authenticator) actorFor(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   user.ID.String(),
		Type: "user",
	}
}

func (a *Authenticator) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(a.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}
}
