package httpapi

import (
	"errors"
	"net/http"
	"time"

	"taskhive/internal/domain"
	"taskhive/internal/service"
)

type memberPermissionsPayload struct {
	CanCreateTasks   bool `json:"canCreateTasks"`
	CanEditTasks     bool `json:"canEditTasks"`
	CanDeleteTasks   bool `json:"canDeleteTasks"`
	CanManageMembers bool `json:"canManageMembers"`
	CanViewReports   bool `json:"canViewReports"`
}

type memberResponse struct {
	ID          string                   `json:"id"`
	ProjectID   string                   `json:"projectId"`
	UserID      string                   `json:"userId"`
	Username    string                   `json:"username,omitempty"`
	Email       string                   `json:"email,omitempty"`
	Role        domain.MemberRole        `json:"role"`
	Permissions memberPermissionsPayload `json:"permissions"`
	InvitedBy   string                   `json:"invitedBy,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
}

func toMemberResponse(m domain.ProjectMember) memberResponse {
	return memberResponse{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		UserID:    m.UserID,
		Username:  m.UserName,
		Email:     m.UserEmail,
		Role:      m.Role,
		Permissions: memberPermissionsPayload{
			CanCreateTasks:   m.Permissions.CanCreateTasks,
			CanEditTasks:     m.Permissions.CanEditTasks,
			CanDeleteTasks:   m.Permissions.CanDeleteTasks,
			CanManageMembers: m.Permissions.CanManageMembers,
			CanViewReports:   m.Permissions.CanViewReports,
		},
		InvitedBy: m.InvitedBy,
		CreatedAt: m.CreatedAt,
	}
}

// requireMember resolves the caller's membership in the routed project.
// Non-members get a 403, whether or not the project exists.
func (a *api) requireMember(w http.ResponseWriter, r *http.Request) (domain.User, domain.ProjectMember, bool) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return domain.User{}, domain.ProjectMember{}, false
	}

	m, err := a.projectSvc.Membership(r.Context(), r.PathValue("projectId"), u.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			WriteDomainError(w, domain.ErrForbidden)
			return domain.User{}, domain.ProjectMember{}, false
		}
		WriteDomainError(w, err)
		return domain.User{}, domain.ProjectMember{}, false
	}
	return u, m, true
}

func (a *api) handleMembersList(w http.ResponseWriter, r *http.Request) {
	_, _, ok := a.requireMember(w, r)
	if !ok {
		return
	}

	members, err := a.projectSvc.ListMembers(r.Context(), r.PathValue("projectId"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	WriteJSON(w, http.StatusOK, struct {
		Members []memberResponse `json:"members"`
	}{Members: out})
}

type addMemberRequest struct {
	Email       string                    `json:"email"`
	Role        string                    `json:"role"`
	Permissions *memberPermissionsPayload `json:"permissions"`
}

func (a *api) handleMembersAdd(w http.ResponseWriter, r *http.Request) {
	u, caller, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	if caller.Role != domain.MemberRoleAdmin && !caller.Permissions.CanManageMembers {
		WriteDomainError(w, domain.ErrForbidden)
		return
	}

	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	in := service.AddMemberInput{
		Email: req.Email,
		Role:  domain.MemberRole(req.Role),
	}
	if req.Permissions != nil {
		in.Permissions = &domain.MemberPermissions{
			CanCreateTasks:   req.Permissions.CanCreateTasks,
			CanEditTasks:     req.Permissions.CanEditTasks,
			CanDeleteTasks:   req.Permissions.CanDeleteTasks,
			CanManageMembers: req.Permissions.CanManageMembers,
			CanViewReports:   req.Permissions.CanViewReports,
		}
	}

	m, err := a.projectSvc.AddMember(r.Context(), r.PathValue("projectId"), u.ID, in)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toMemberResponse(m))
}
