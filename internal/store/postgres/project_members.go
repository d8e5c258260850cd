package postgres

import (
	"context"
	"errors"
	"fmt"

	"taskhive/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectMembersStore struct {
	pool *pgxpool.Pool
}

func NewProjectMembersStore(pool *pgxpool.Pool) *ProjectMembersStore {
	return &ProjectMembersStore{pool: pool}
}

func (s *ProjectMembersStore) CreateMember(ctx context.Context, params domain.CreateMemberParams) (domain.ProjectMember, error) {
	const q = `
		INSERT INTO project_members (
			project_id, user_id, role, invited_by,
			can_create_tasks, can_edit_tasks, can_delete_tasks, can_manage_members, can_view_reports
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, project_id, user_id, role, invited_by,
			can_create_tasks, can_edit_tasks, can_delete_tasks, can_manage_members, can_view_reports,
			created_at, updated_at
	`

	var (
		m           domain.ProjectMember
		idUUID      pgtype.UUID
		projectUUID pgtype.UUID
		userUUID    pgtype.UUID
		invitedUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q,
		params.ProjectID,
		params.UserID,
		params.Role,
		nullIfEmpty(params.InvitedBy),
		params.Permissions.CanCreateTasks,
		params.Permissions.CanEditTasks,
		params.Permissions.CanDeleteTasks,
		params.Permissions.CanManageMembers,
		params.Permissions.CanViewReports,
	).Scan(
		&idUUID,
		&projectUUID,
		&userUUID,
		&m.Role,
		&invitedUUID,
		&m.Permissions.CanCreateTasks,
		&m.Permissions.CanEditTasks,
		&m.Permissions.CanDeleteTasks,
		&m.Permissions.CanManageMembers,
		&m.Permissions.CanViewReports,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" && pgerr.ConstraintName == "project_members_project_user_uq" {
			return domain.ProjectMember{}, domain.ErrMemberExists
		}
		return domain.ProjectMember{}, fmt.Errorf("create project member: %w", err)
	}

	m.ID = uuidOrEmpty(idUUID)
	m.ProjectID = uuidOrEmpty(projectUUID)
	m.UserID = uuidOrEmpty(userUUID)
	m.InvitedBy = uuidOrEmpty(invitedUUID)
	return m, nil
}

func (s *ProjectMembersStore) GetMember(ctx context.Context, projectID, userID string) (domain.ProjectMember, error) {
	const q = `
		SELECT id, project_id, user_id, role, invited_by,
		       can_create_tasks, can_edit_tasks, can_delete_tasks, can_manage_members, can_view_reports,
		       created_at, updated_at
		FROM project_members
		WHERE project_id = $1 AND user_id = $2
	`

	var (
		m           domain.ProjectMember
		idUUID      pgtype.UUID
		projectUUID pgtype.UUID
		userUUID    pgtype.UUID
		invitedUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, projectID, userID).Scan(
		&idUUID,
		&projectUUID,
		&userUUID,
		&m.Role,
		&invitedUUID,
		&m.Permissions.CanCreateTasks,
		&m.Permissions.CanEditTasks,
		&m.Permissions.CanDeleteTasks,
		&m.Permissions.CanManageMembers,
		&m.Permissions.CanViewReports,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProjectMember{}, domain.ErrNotFound
		}
		return domain.ProjectMember{}, fmt.Errorf("get project member: %w", err)
	}

	m.ID = uuidOrEmpty(idUUID)
	m.ProjectID = uuidOrEmpty(projectUUID)
	m.UserID = uuidOrEmpty(userUUID)
	m.InvitedBy = uuidOrEmpty(invitedUUID)
	return m, nil
}

func (s *ProjectMembersStore) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	const q = `
		SELECT pm.id, pm.project_id, pm.user_id, pm.role, pm.invited_by,
		       pm.can_create_tasks, pm.can_edit_tasks, pm.can_delete_tasks, pm.can_manage_members, pm.can_view_reports,
		       pm.created_at, pm.updated_at,
		       u.username, u.email
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.created_at DESC
	`

	rows, err := s.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	var out []domain.ProjectMember
	for rows.Next() {
		var (
			m           domain.ProjectMember
			idUUID      pgtype.UUID
			projectUUID pgtype.UUID
			userUUID    pgtype.UUID
			invitedUUID pgtype.UUID
		)
		err := rows.Scan(
			&idUUID,
			&projectUUID,
			&userUUID,
			&m.Role,
			&invitedUUID,
			&m.Permissions.CanCreateTasks,
			&m.Permissions.CanEditTasks,
			&m.Permissions.CanDeleteTasks,
			&m.Permissions.CanManageMembers,
			&m.Permissions.CanViewReports,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserName,
			&m.UserEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan project member row: %w", err)
		}
		m.ID = uuidOrEmpty(idUUID)
		m.ProjectID = uuidOrEmpty(projectUUID)
		m.UserID = uuidOrEmpty(userUUID)
		m.InvitedBy = uuidOrEmpty(invitedUUID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	return out, nil
}
