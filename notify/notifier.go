// Package notify carries best-effort operator and user notifications for the
// account lifecycle. Delivery is always fire-and-forget: the state
// transition that triggered a notification has already committed, so a
// failed send is logged with enough payload context to recover (a
// temporary password, in the worst case) and never rolled back.
package notify

import (
	"context"
)

// Kind labels what a message is about, so implementations can pick a
// template without parsing the payload.
type Kind string

const (
	// KindTempPassword delivers a freshly generated temporary password.
	KindTempPassword Kind = "temp-password"
	// KindApprovalDecision informs an applicant of an approve/reject call.
	KindApprovalDecision Kind = "approval-decision"
	// KindNewActiveUser informs operators that an account completed the
	// forced password reset and is now fully active.
	KindNewActiveUser Kind = "new-active-user"
	// KindAccountRequest informs operators of a new request-access
	// submission.
	KindAccountRequest Kind = "account-request"
)

// Message is one notification to one recipient.
type Message struct {
	Kind      Kind
	Recipient string
	Subject   string
	Payload   map[string]string
}

// Notifier is the external delivery collaborator. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// Discard drops every message. Useful in tests and tools that provision
// accounts and print the credentials themselves.
var Discard Notifier = NotifierFunc(func(context.Context, Message) error {
	return nil
})
