package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhive/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectsStore struct {
	pool *pgxpool.Pool
}

func NewProjectsStore(pool *pgxpool.Pool) *ProjectsStore {
	return &ProjectsStore{pool: pool}
}

const projectCols = `id, name, description, created_by, visibility, default_task_status,
	allow_guest_access, total_tasks, completed_tasks, total_members,
	last_activity_at, is_archived, archived_at, created_at, updated_at`

// CreateProject inserts the project and the creator's admin membership in
// one transaction.
func (s *ProjectsStore) CreateProject(ctx context.Context, params domain.CreateProjectParams) (domain.Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Project{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertProject = `
		INSERT INTO projects (name, description, created_by, visibility, default_task_status, allow_guest_access)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + projectCols

	p, err := scanProject(tx.QueryRow(ctx, insertProject,
		params.Name,
		params.Description,
		params.CreatedBy,
		params.Settings.Visibility,
		params.Settings.DefaultTaskStatus,
		params.Settings.AllowGuestAccess,
	))
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" && pgerr.ConstraintName == "projects_name_uq" {
			return domain.Project{}, domain.ErrProjectNameTaken
		}
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}

	const insertAdmin = `
		INSERT INTO project_members (
			project_id, user_id, role, invited_by,
			can_create_tasks, can_edit_tasks, can_delete_tasks, can_manage_members, can_view_reports
		)
		VALUES ($1, $2, 'admin', $2, TRUE, TRUE, TRUE, TRUE, TRUE)
	`
	if _, err := tx.Exec(ctx, insertAdmin, p.ID, params.CreatedBy); err != nil {
		return domain.Project{}, fmt.Errorf("create project admin member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Project{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *ProjectsStore) GetProjectByID(ctx context.Context, id string) (domain.Project, error) {
	const q = `SELECT ` + projectCols + ` FROM projects WHERE id = $1`

	p, err := scanProject(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, fmt.Errorf("get project by id: %w", err)
	}
	return p, nil
}

func (s *ProjectsStore) ListProjectsForUser(ctx context.Context, userID string) ([]domain.ProjectWithRole, error) {
	const q = `
		SELECT p.id, p.name, p.description, p.created_by, p.visibility, p.default_task_status,
		       p.allow_guest_access, p.total_tasks, p.completed_tasks, p.total_members,
		       p.last_activity_at, p.is_archived, p.archived_at, p.created_at, p.updated_at,
		       pm.role
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.user_id = $1 AND NOT p.is_archived
		ORDER BY pm.created_at DESC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects for user: %w", err)
	}
	defer rows.Close()

	var out []domain.ProjectWithRole
	for rows.Next() {
		var (
			p          domain.Project
			idUUID     pgtype.UUID
			byUUID     pgtype.UUID
			archivedTS pgtype.Timestamptz
			role       string
		)
		err := rows.Scan(
			&idUUID,
			&p.Name,
			&p.Description,
			&byUUID,
			&p.Settings.Visibility,
			&p.Settings.DefaultTaskStatus,
			&p.Settings.AllowGuestAccess,
			&p.Metadata.TotalTasks,
			&p.Metadata.CompletedTasks,
			&p.Metadata.TotalMembers,
			&p.Metadata.LastActivity,
			&p.Metadata.IsArchived,
			&archivedTS,
			&p.CreatedAt,
			&p.UpdatedAt,
			&role,
		)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		p.ID = uuidOrEmpty(idUUID)
		p.CreatedBy = uuidOrEmpty(byUUID)
		p.Metadata.ArchivedAt = timestamptzPtr(archivedTS)
		out = append(out, domain.ProjectWithRole{Project: p, Role: domain.MemberRole(role)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects for user: %w", err)
	}
	return out, nil
}

// BumpMemberCount records a membership change on the project metadata.
func (s *ProjectsStore) BumpMemberCount(ctx context.Context, projectID string, delta int, when time.Time) error {
	const q = `
		UPDATE projects
		SET total_members = total_members + $2, last_activity_at = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, projectID, delta, when)
	if err != nil {
		return fmt.Errorf("bump member count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var (
		p          domain.Project
		idUUID     pgtype.UUID
		byUUID     pgtype.UUID
		archivedTS pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&p.Name,
		&p.Description,
		&byUUID,
		&p.Settings.Visibility,
		&p.Settings.DefaultTaskStatus,
		&p.Settings.AllowGuestAccess,
		&p.Metadata.TotalTasks,
		&p.Metadata.CompletedTasks,
		&p.Metadata.TotalMembers,
		&p.Metadata.LastActivity,
		&p.Metadata.IsArchived,
		&archivedTS,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, err
	}
	p.ID = uuidOrEmpty(idUUID)
	p.CreatedBy = uuidOrEmpty(byUUID)
	p.Metadata.ArchivedAt = timestamptzPtr(archivedTS)
	return p, nil
}
