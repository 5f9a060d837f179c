// Package platform implements the account and session core of the Deceased
// Status verification service: credential storage, password policy, the
// account lifecycle (temporary password provisioning, forced reset, admin
// approval), and cookie-session issuance/validation consumed by the edge
// gatekeeper middleware.
//
// Account lifecycle:
//   - Accounts are provisioned with a generated temporary password and
//     MustReset set. Until the holder proves the temporary secret and picks
//     a real password, the gatekeeper confines the session to the
//     set-password flow.
//   - Approval is an orthogonal axis: request-access accounts start
//     PENDING_APPROVAL and an admin decision either activates (APPROVED) or
//     deactivates (REJECTED) them. Admin-provisioned accounts skip the
//     queue.
//   - Admin mutations (activate, promote, approve, delete) run through
//     AccountAdmin, which enforces the self-protection rules and emits
//     ActivityEvents for the operator audit log.
//
// Sessions:
//   - The session token is a signed HS256 JWT resolving to the account id,
//     exchanged via a single cookie with a 30-day sliding window. Validation
//     always re-reads the account record; token claims are hints, never
//     authorization inputs.
package platform
