package platform

import (
	goerrors "github.com/goliatone/go-errors"
)

// Error taxonomy for the account core. Login failures deliberately use one
// error for "no such account" and "wrong password" so responses cannot be
// used to enumerate accounts.
var (
	// ErrInvalidCredentials is returned for any authentication failure that
	// must stay indistinguishable to the caller.
	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithTextCode("INVALID_CREDENTIALS").
				WithCode(goerrors.CodeUnauthorized)

	// ErrAccountInactive is returned when credentials are valid but the
	// account has been deactivated.
	ErrAccountInactive = goerrors.New("account not activated, contact an administrator", goerrors.CategoryAuthz).
				WithTextCode("ACCOUNT_INACTIVE").
				WithCode(goerrors.CodeForbidden)

	// ErrForbidden is returned when the actor lacks the admin role required
	// for a privileged mutation.
	ErrForbidden = goerrors.New("admin access required", goerrors.CategoryAuthz).
			WithTextCode("ADMIN_REQUIRED").
			WithCode(goerrors.CodeForbidden)

	// ErrSelfAction is returned when an admin targets their own account with
	// a mutation that would remove their admin rights, active status, or the
	// account itself.
	ErrSelfAction = goerrors.New("admins cannot demote, deactivate, or delete their own account", goerrors.CategoryBadInput).
			WithTextCode("SELF_ACTION").
			WithCode(goerrors.CodeBadRequest)

	// ErrEmailConflict is returned when provisioning an email that already
	// has an account, under any casing.
	ErrEmailConflict = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
				WithTextCode("EMAIL_CONFLICT").
				WithCode(goerrors.CodeConflict)

	// ErrInvalidState is returned for lifecycle operations whose
	// precondition no longer holds, e.g. approving an already-decided
	// account or re-running a completed first-time password set.
	ErrInvalidState = goerrors.New("account is not in the required state", goerrors.CategoryValidation).
			WithTextCode("INVALID_ACCOUNT_STATE").
			WithCode(goerrors.CodeBadRequest)

	// ErrResetNotRequired is returned when the set-password flow is used by
	// an account that is not flagged for a forced reset.
	ErrResetNotRequired = goerrors.New("password change not required", goerrors.CategoryValidation).
				WithTextCode("RESET_NOT_REQUIRED").
				WithCode(goerrors.CodeBadRequest)

	// ErrPasswordReuse is returned when a new password equals the current
	// one, including the first rotation off a temporary password.
	ErrPasswordReuse = goerrors.New("new password must be different from the current password", goerrors.CategoryValidation).
				WithTextCode("PASSWORD_REUSE").
				WithCode(goerrors.CodeBadRequest)

	// ErrPasswordMismatch is returned when the confirmation does not match
	// the new password.
	ErrPasswordMismatch = goerrors.New("new password and confirmation do not match", goerrors.CategoryValidation).
				WithTextCode("PASSWORD_MISMATCH").
				WithCode(goerrors.CodeBadRequest)

	// ErrAccountNotFound is returned when an admin mutation targets an id
	// that does not resolve.
	ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
				WithTextCode("ACCOUNT_NOT_FOUND").
				WithCode(goerrors.CodeNotFound)

	// ErrBatchNotFound is returned when a batch id does not resolve or is
	// owned by a different account. Both cases read the same on purpose.
	ErrBatchNotFound = goerrors.New("batch not found", goerrors.CategoryNotFound).
				WithTextCode("BATCH_NOT_FOUND").
				WithCode(goerrors.CodeNotFound)

	// ErrTooManyLoginAttempts is returned when an account exceeds the login
	// attempt budget inside the cool-down window.
	ErrTooManyLoginAttempts = goerrors.New("too many failed login attempts, try again later", goerrors.CategoryAuth).
				WithTextCode("TOO_MANY_ATTEMPTS").
				WithCode(goerrors.CodeUnauthorized)

	// ErrSessionInvalid is the definitive "this token resolves to nothing"
	// result. The gatekeeper clears the cookie only for this error; any
	// other validation failure is treated as transient.
	ErrSessionInvalid = goerrors.New("session is not valid", goerrors.CategoryAuth).
				WithTextCode("SESSION_INVALID").
				WithCode(goerrors.CodeUnauthorized)

	// ErrSessionExpired is returned for tokens past their expiry.
	ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
				WithTextCode("SESSION_EXPIRED").
				WithCode(goerrors.CodeUnauthorized)
)

// IsAuthError reports whether err is a definitive authentication failure, as
// opposed to a transient fault that should not evict a session.
func IsAuthError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryAuth
}

// HTTPStatus maps any error to the status code the JSON surface responds
// with; unexpected errors collapse to 500 without leaking detail.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code > 0 {
		return rich.Code
	}
	return goerrors.CodeInternal
}

// UserMessage extracts the user-safe message for an error; anything outside
// the taxonomy reads as an internal error.
func UserMessage(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}
	return "internal server error"
}
