package service

import (
	"context"
	"strings"
	"time"

	"taskhive/internal/domain"
)

type ProjectsStore interface {
	CreateProject(ctx context.Context, params domain.CreateProjectParams) (domain.Project, error)
	GetProjectByID(ctx context.Context, id string) (domain.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]domain.ProjectWithRole, error)
	BumpMemberCount(ctx context.Context, projectID string, delta int, when time.Time) error
}

type MembersStore interface {
	CreateMember(ctx context.Context, params domain.CreateMemberParams) (domain.ProjectMember, error)
	GetMember(ctx context.Context, projectID, userID string) (domain.ProjectMember, error)
	ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error)
}

type MemberUsersStore interface {
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithSecrets, error)
}

type ProjectService struct {
	Projects ProjectsStore
	Members  MembersStore
	Users    MemberUsersStore
	Now      func() time.Time
}

func (s *ProjectService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type CreateProjectInput struct {
	Name        string
	Description string
	Settings    domain.ProjectSettings
}

func (s *ProjectService) CreateProject(ctx context.Context, creatorID string, in CreateProjectInput) (domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, domain.NewValidationError(map[string]string{"name": "required"})
	}

	settings := in.Settings
	if settings.Visibility == "" {
		settings.Visibility = domain.ProjectVisibilityPrivate
	}
	if settings.DefaultTaskStatus == "" {
		settings.DefaultTaskStatus = domain.TaskStatusTodo
	}
	switch settings.Visibility {
	case domain.ProjectVisibilityPublic, domain.ProjectVisibilityTeam, domain.ProjectVisibilityPrivate:
	default:
		return domain.Project{}, domain.NewValidationError(map[string]string{"visibility": "must be public, team or private"})
	}
	switch settings.DefaultTaskStatus {
	case domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusReview, domain.TaskStatusDone:
	default:
		return domain.Project{}, domain.NewValidationError(map[string]string{"default_task_status": "unknown status"})
	}

	return s.Projects.CreateProject(ctx, domain.CreateProjectParams{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   creatorID,
		Settings:    settings,
	})
}

func (s *ProjectService) ListMyProjects(ctx context.Context, userID string) ([]domain.ProjectWithRole, error) {
	return s.Projects.ListProjectsForUser(ctx, userID)
}

// Membership resolves the caller's membership in a project, for the
// member-only route gate.
func (s *ProjectService) Membership(ctx context.Context, projectID, userID string) (domain.ProjectMember, error) {
	return s.Members.GetMember(ctx, projectID, userID)
}

func (s *ProjectService) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	return s.Members.ListMembers(ctx, projectID)
}

type AddMemberInput struct {
	Email       string
	Role        domain.MemberRole
	Permissions *domain.MemberPermissions
}

// AddMember invites a registered user into a project. Defaults mirror a
// regular collaborator: may create and edit tasks and view reports, may
// not delete tasks or manage members.
func (s *ProjectService) AddMember(ctx context.Context, projectID, invitedBy string, in AddMemberInput) (domain.ProjectMember, error) {
	emailAddr := normalizeEmail(in.Email)
	if emailAddr == "" {
		return domain.ProjectMember{}, domain.NewValidationError(map[string]string{"email": "required"})
	}

	role := in.Role
	if role == "" {
		role = domain.MemberRoleMember
	}
	switch role {
	case domain.MemberRoleAdmin, domain.MemberRoleMember:
	default:
		return domain.ProjectMember{}, domain.NewValidationError(map[string]string{"role": "must be admin or member"})
	}

	if _, err := s.Projects.GetProjectByID(ctx, projectID); err != nil {
		return domain.ProjectMember{}, err
	}

	u, err := s.Users.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return domain.ProjectMember{}, err
	}

	permissions := domain.MemberPermissions{
		CanCreateTasks: true,
		CanEditTasks:   true,
		CanViewReports: true,
	}
	if in.Permissions != nil {
		permissions = *in.Permissions
	}

	m, err := s.Members.CreateMember(ctx, domain.CreateMemberParams{
		ProjectID:   projectID,
		UserID:      u.ID,
		Role:        role,
		Permissions: permissions,
		InvitedBy:   invitedBy,
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	m.UserName = u.Username
	m.UserEmail = u.Email

	// The membership row is authoritative; the counter is advisory.
	_ = s.Projects.BumpMemberCount(ctx, projectID, 1, s.now())

	return m, nil
}
