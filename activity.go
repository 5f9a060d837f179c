package platform

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported audit categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventAccountProvisioned ActivityEventType = "account.provisioned"
	ActivityEventPasswordSet        ActivityEventType = "account.password.set"
	ActivityEventPasswordChanged    ActivityEventType = "account.password.changed"
	ActivityEventTempPasswordIssued ActivityEventType = "account.temp_password.issued"
	ActivityEventStatusChanged      ActivityEventType = "account.status.changed"
	ActivityEventRoleChanged        ActivityEventType = "account.role.changed"
	ActivityEventApprovalDecided    ActivityEventType = "account.approval.decided"
	ActivityEventAccountDeleted     ActivityEventType = "account.deleted"
)

// ActorRef identifies who or what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action. The
// event stream doubles as the operator log: when a Notifier fails to deliver
// a temporary password, the plaintext is preserved here so the credential is
// not lost.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks run
// best-effort: errors are logged, never propagated.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
