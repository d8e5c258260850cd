package httpapi

import (
	"net/http"
	"time"

	"taskhive/internal/domain"
	"taskhive/internal/service"
)

type projectSettingsPayload struct {
	Visibility        string `json:"visibility,omitempty"`
	DefaultTaskStatus string `json:"defaultTaskStatus,omitempty"`
	AllowGuestAccess  bool   `json:"allowGuestAccess,omitempty"`
}

type projectMetadataResponse struct {
	TotalTasks     int        `json:"totalTasks"`
	CompletedTasks int        `json:"completedTasks"`
	TotalMembers   int        `json:"totalMembers"`
	LastActivity   time.Time  `json:"lastActivity"`
	IsArchived     bool       `json:"isArchived"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
}

type projectResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	CreatedBy   string                  `json:"createdBy"`
	Settings    projectSettingsPayload  `json:"settings"`
	Metadata    projectMetadataResponse `json:"metadata"`
	Role        domain.MemberRole       `json:"role,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

func toProjectResponse(p domain.Project, role domain.MemberRole) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
		Settings: projectSettingsPayload{
			Visibility:        string(p.Settings.Visibility),
			DefaultTaskStatus: string(p.Settings.DefaultTaskStatus),
			AllowGuestAccess:  p.Settings.AllowGuestAccess,
		},
		Metadata: projectMetadataResponse{
			TotalTasks:     p.Metadata.TotalTasks,
			CompletedTasks: p.Metadata.CompletedTasks,
			TotalMembers:   p.Metadata.TotalMembers,
			LastActivity:   p.Metadata.LastActivity,
			IsArchived:     p.Metadata.IsArchived,
			ArchivedAt:     p.Metadata.ArchivedAt,
		},
		Role:      role,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type createProjectRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Settings    *projectSettingsPayload `json:"settings"`
}

func (a *api) handleProjectsCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	in := service.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Settings != nil {
		in.Settings = domain.ProjectSettings{
			Visibility:        domain.ProjectVisibility(req.Settings.Visibility),
			DefaultTaskStatus: domain.TaskStatus(req.Settings.DefaultTaskStatus),
			AllowGuestAccess:  req.Settings.AllowGuestAccess,
		}
	}

	p, err := a.projectSvc.CreateProject(r.Context(), u.ID, in)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toProjectResponse(p, domain.MemberRoleAdmin))
}

func (a *api) handleProjectsList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	list, err := a.projectSvc.ListMyProjects(r.Context(), u.ID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]projectResponse, 0, len(list))
	for _, pr := range list {
		out = append(out, toProjectResponse(pr.Project, pr.Role))
	}
	WriteJSON(w, http.StatusOK, struct {
		Projects []projectResponse `json:"projects"`
	}{Projects: out})
}
