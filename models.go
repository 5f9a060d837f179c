package platform

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's authorization role.
type UserRole = string

const (
	// RoleUser is a regular verified-access account.
	RoleUser UserRole = "USER"
	// RoleAdmin may manage other accounts.
	RoleAdmin UserRole = "ADMIN"
)

// ApprovalStatus tracks the admin review decision for an account.
type ApprovalStatus = string

const (
	// ApprovalPending means the account awaits an admin decision.
	ApprovalPending ApprovalStatus = "PENDING_APPROVAL"
	// ApprovalApproved means an admin granted access.
	ApprovalApproved ApprovalStatus = "APPROVED"
	// ApprovalRejected means an admin denied access. Rejected accounts are
	// always deactivated.
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// User is the persisted account entity.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName      string         `bun:"first_name" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name" json:"last_name,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	MustReset      bool           `bun:"must_reset,notnull" json:"must_reset"`
	IsActive       bool           `bun:"is_active,notnull" json:"is_active"`
	ApprovalStatus ApprovalStatus `bun:"approval_status,notnull" json:"approval_status,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// FullName joins first and last name, falling back to the email address so
// notifications always have something to address the person by.
func (u *User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}

// EnsureApprovalStatus backfills the approval axis for records created before
// the column existed.
func (u *User) EnsureApprovalStatus() {
	if u.ApprovalStatus == "" {
		u.ApprovalStatus = ApprovalApproved
	}
}

// NormalizeEmail lowercases and trims an email address; every store lookup
// and insert goes through this so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SearchRecord is a single person lookup owned by an account. Records are
// removed when the owning account is deleted.
type SearchRecord struct {
	bun.BaseModel `bun:"table:searches,alias:srch"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	BatchID       *uuid.UUID `bun:"batch_id,type:uuid" json:"batch_id,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	MiddleName    string     `bun:"middle_name" json:"middle_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	DateOfBirth   string     `bun:"date_of_birth,notnull" json:"date_of_birth,omitempty"`
	City          string     `bun:"city,notnull" json:"city,omitempty"`
	State         string     `bun:"state,notnull" json:"state,omitempty"`
	Deceased      bool       `bun:"deceased" json:"deceased"`
	MatchScore    float64    `bun:"match_score" json:"match_score,omitempty"`
	Source        string     `bun:"source" json:"source,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// BatchStatus tracks the progress of a bulk upload.
type BatchStatus = string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// SearchBatch groups the rows of one bulk CSV upload.
type SearchBatch struct {
	bun.BaseModel `bun:"table:search_batches,alias:btch"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	FileName      string      `bun:"file_name" json:"file_name,omitempty"`
	Status        BatchStatus `bun:"status,notnull" json:"status,omitempty"`
	TotalRows     int         `bun:"total_rows" json:"total_rows"`
	ProcessedRows int         `bun:"processed_rows" json:"processed_rows"`
	FailedRows    int         `bun:"failed_rows" json:"failed_rows"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AccountRequest is a request-access submission from the marketing site. The
// record is audit trail; the account itself is provisioned immediately with
// a temporary password and PENDING_APPROVAL status.
type AccountRequest struct {
	bun.BaseModel  `bun:"table:account_requests,alias:areq"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Company        string     `bun:"company,notnull" json:"company,omitempty"`
	Email          string     `bun:"email,notnull" json:"email,omitempty"`
	Phone          string     `bun:"phone" json:"phone,omitempty"`
	UseCase        string     `bun:"use_case,notnull" json:"use_case,omitempty"`
	ExpectedVolume string     `bun:"expected_volume,notnull" json:"expected_volume,omitempty"`
	Message        string     `bun:"message" json:"message,omitempty"`
	ResolvedAt     *time.Time `bun:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
