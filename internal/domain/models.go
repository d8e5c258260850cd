package domain

import "time"

type User struct {
	ID              string
	Email           string
	Username        string
	Fullname        string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserWithSecrets carries the credential and token fields that must never
// leave the auth core. Handlers only ever see the embedded User.
type UserWithSecrets struct {
	User
	PasswordHash            string
	RefreshToken            string
	VerificationTokenHash   string
	VerificationTokenExpiry *time.Time
	ResetTokenHash          string
	ResetTokenExpiry        *time.Time
}

// UpdateUserParams is a partial update; nil fields are left untouched.
type UpdateUserParams struct {
	Email        *string
	Username     *string
	Fullname     *string
	PasswordHash *string
}

type ExternalAccount struct {
	ID         string
	UserID     string
	Provider   string
	ProviderID string
	Email      string
	CreatedAt  time.Time
}

type ProjectVisibility string

const (
	ProjectVisibilityPublic  ProjectVisibility = "public"
	ProjectVisibilityTeam    ProjectVisibility = "team"
	ProjectVisibilityPrivate ProjectVisibility = "private"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "to_do"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

type ProjectSettings struct {
	Visibility        ProjectVisibility
	DefaultTaskStatus TaskStatus
	AllowGuestAccess  bool
}

type ProjectMetadata struct {
	TotalTasks     int
	CompletedTasks int
	TotalMembers   int
	LastActivity   time.Time
	IsArchived     bool
	ArchivedAt     *time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	Settings    ProjectSettings
	Metadata    ProjectMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type MemberPermissions struct {
	CanCreateTasks   bool
	CanEditTasks     bool
	CanDeleteTasks   bool
	CanManageMembers bool
	CanViewReports   bool
}

type ProjectMember struct {
	ID          string
	ProjectID   string
	UserID      string
	Role        MemberRole
	Permissions MemberPermissions
	InvitedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Populated on list queries.
	UserName  string
	UserEmail string
}

// ProjectWithRole pairs a project with the requesting user's role in it.
type ProjectWithRole struct {
	Project Project
	Role    MemberRole
}

type CreateProjectParams struct {
	Name        string
	Description string
	CreatedBy   string
	Settings    ProjectSettings
}

type CreateMemberParams struct {
	ProjectID   string
	UserID      string
	Role        MemberRole
	Permissions MemberPermissions
	InvitedBy   string
}
