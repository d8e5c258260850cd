package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskhive/internal/domain"
	"taskhive/internal/service"
)

type stubProjectsStore struct {
	t *testing.T

	createProjectFunc       func(context.Context, domain.CreateProjectParams) (domain.Project, error)
	getProjectByIDFunc      func(context.Context, string) (domain.Project, error)
	listProjectsForUserFunc func(context.Context, string) ([]domain.ProjectWithRole, error)
	bumpMemberCountFunc     func(context.Context, string, int, time.Time) error
}

func (s *stubProjectsStore) CreateProject(ctx context.Context, params domain.CreateProjectParams) (domain.Project, error) {
	if s.createProjectFunc != nil {
		return s.createProjectFunc(ctx, params)
	}
	s.t.Fatalf("CreateProject called unexpectedly")
	return domain.Project{}, errors.New("unexpected call")
}

func (s *stubProjectsStore) GetProjectByID(ctx context.Context, id string) (domain.Project, error) {
	if s.getProjectByIDFunc != nil {
		return s.getProjectByIDFunc(ctx, id)
	}
	s.t.Fatalf("GetProjectByID called unexpectedly")
	return domain.Project{}, errors.New("unexpected call")
}

func (s *stubProjectsStore) ListProjectsForUser(ctx context.Context, userID string) ([]domain.ProjectWithRole, error) {
	if s.listProjectsForUserFunc != nil {
		return s.listProjectsForUserFunc(ctx, userID)
	}
	s.t.Fatalf("ListProjectsForUser called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubProjectsStore) BumpMemberCount(ctx context.Context, projectID string, delta int, when time.Time) error {
	if s.bumpMemberCountFunc != nil {
		return s.bumpMemberCountFunc(ctx, projectID, delta, when)
	}
	s.t.Fatalf("BumpMemberCount called unexpectedly")
	return errors.New("unexpected call")
}

type stubMembersStore struct {
	t *testing.T

	createMemberFunc func(context.Context, domain.CreateMemberParams) (domain.ProjectMember, error)
	getMemberFunc    func(context.Context, string, string) (domain.ProjectMember, error)
	listMembersFunc  func(context.Context, string) ([]domain.ProjectMember, error)
}

func (s *stubMembersStore) CreateMember(ctx context.Context, params domain.CreateMemberParams) (domain.ProjectMember, error) {
	if s.createMemberFunc != nil {
		return s.createMemberFunc(ctx, params)
	}
	s.t.Fatalf("CreateMember called unexpectedly")
	return domain.ProjectMember{}, errors.New("unexpected call")
}

func (s *stubMembersStore) GetMember(ctx context.Context, projectID, userID string) (domain.ProjectMember, error) {
	if s.getMemberFunc != nil {
		return s.getMemberFunc(ctx, projectID, userID)
	}
	s.t.Fatalf("GetMember called unexpectedly")
	return domain.ProjectMember{}, errors.New("unexpected call")
}

func (s *stubMembersStore) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	if s.listMembersFunc != nil {
		return s.listMembersFunc(ctx, projectID)
	}
	s.t.Fatalf("ListMembers called unexpectedly")
	return nil, errors.New("unexpected call")
}

// projectTestRouter wires a router where "user-1" is authenticated via a
// bearer token minted by the shared test codec.
func projectTestRouter(t *testing.T, projects *stubProjectsStore, members *stubMembersStore, users *stubUsersStore) (http.Handler, string) {
	t.Helper()
	codec := testTokenCodec()

	if users.getUserByIDFunc == nil {
		users.getUserByIDFunc = func(_ context.Context, id string) (domain.User, error) {
			return domain.User{ID: id, Email: "ada@example.com", Username: "ada"}, nil
		}
	}

	h := NewRouter(RouterOpts{
		Auth: &service.AuthService{Users: users, Codec: codec},
		Projects: &service.ProjectService{
			Projects: projects,
			Members:  members,
			Users:    users,
		},
		Codec: codec,
	})

	token, err := codec.IssueAccessToken(domain.User{ID: "user-1", Email: "ada@example.com", Username: "ada"})
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	return h, token
}

func TestProjectsCreate(t *testing.T) {
	projects := &stubProjectsStore{
		t: t,
		createProjectFunc: func(_ context.Context, params domain.CreateProjectParams) (domain.Project, error) {
			if params.Name != "Website Redesign" || params.CreatedBy != "user-1" {
				t.Fatalf("unexpected params: %+v", params)
			}
			if params.Settings.Visibility != domain.ProjectVisibilityTeam {
				t.Fatalf("unexpected visibility: %s", params.Settings.Visibility)
			}
			return domain.Project{
				ID:        "proj-1",
				Name:      params.Name,
				CreatedBy: params.CreatedBy,
				Settings:  params.Settings,
			}, nil
		},
	}
	h, token := projectTestRouter(t, projects, &stubMembersStore{t: t}, &stubUsersStore{t: t})

	body := `{"name":"Website Redesign","settings":{"visibility":"team"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp projectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "proj-1" || resp.Role != domain.MemberRoleAdmin {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestProjectsCreateNameConflict(t *testing.T) {
	projects := &stubProjectsStore{
		t: t,
		createProjectFunc: func(_ context.Context, _ domain.CreateProjectParams) (domain.Project, error) {
			return domain.Project{}, domain.ErrProjectNameTaken
		},
	}
	h, token := projectTestRouter(t, projects, &stubMembersStore{t: t}, &stubUsersStore{t: t})

	body := `{"name":"Website Redesign"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProjectsList(t *testing.T) {
	projects := &stubProjectsStore{
		t: t,
		listProjectsForUserFunc: func(_ context.Context, userID string) ([]domain.ProjectWithRole, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id: %s", userID)
			}
			return []domain.ProjectWithRole{
				{Project: domain.Project{ID: "proj-1", Name: "One"}, Role: domain.MemberRoleAdmin},
				{Project: domain.Project{ID: "proj-2", Name: "Two"}, Role: domain.MemberRoleMember},
			}, nil
		},
	}
	h, token := projectTestRouter(t, projects, &stubMembersStore{t: t}, &stubUsersStore{t: t})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Projects []projectResponse `json:"projects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Projects) != 2 || resp.Projects[1].Role != domain.MemberRoleMember {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestMembersListRequiresMembership(t *testing.T) {
	members := &stubMembersStore{
		t: t,
		getMemberFunc: func(_ context.Context, _, _ string) (domain.ProjectMember, error) {
			return domain.ProjectMember{}, domain.ErrNotFound
		},
	}
	h, token := projectTestRouter(t, &stubProjectsStore{t: t}, members, &stubUsersStore{t: t})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMembersList(t *testing.T) {
	members := &stubMembersStore{
		t: t,
		getMemberFunc: func(_ context.Context, projectID, userID string) (domain.ProjectMember, error) {
			if projectID != "proj-1" || userID != "user-1" {
				t.Fatalf("unexpected member lookup: %s %s", projectID, userID)
			}
			return domain.ProjectMember{ProjectID: projectID, UserID: userID, Role: domain.MemberRoleMember}, nil
		},
		listMembersFunc: func(_ context.Context, projectID string) ([]domain.ProjectMember, error) {
			return []domain.ProjectMember{
				{ID: "mem-1", ProjectID: projectID, UserID: "user-1", Role: domain.MemberRoleAdmin, UserName: "ada"},
				{ID: "mem-2", ProjectID: projectID, UserID: "user-2", Role: domain.MemberRoleMember, UserName: "grace"},
			}, nil
		},
	}
	h, token := projectTestRouter(t, &stubProjectsStore{t: t}, members, &stubUsersStore{t: t})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Members []memberResponse `json:"members"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Members) != 2 || resp.Members[1].Username != "grace" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestMembersAddRequiresManagePermission(t *testing.T) {
	members := &stubMembersStore{
		t: t,
		getMemberFunc: func(_ context.Context, projectID, userID string) (domain.ProjectMember, error) {
			return domain.ProjectMember{
				ProjectID: projectID,
				UserID:    userID,
				Role:      domain.MemberRoleMember,
			}, nil
		},
	}
	h, token := projectTestRouter(t, &stubProjectsStore{t: t}, members, &stubUsersStore{t: t})

	body := `{"email":"grace@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/members", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMembersAdd(t *testing.T) {
	projects := &stubProjectsStore{
		t: t,
		getProjectByIDFunc: func(_ context.Context, id string) (domain.Project, error) {
			return domain.Project{ID: id}, nil
		},
		bumpMemberCountFunc: func(_ context.Context, _ string, _ int, _ time.Time) error {
			return nil
		},
	}
	members := &stubMembersStore{
		t: t,
		getMemberFunc: func(_ context.Context, projectID, userID string) (domain.ProjectMember, error) {
			return domain.ProjectMember{
				ProjectID: projectID,
				UserID:    userID,
				Role:      domain.MemberRoleAdmin,
			}, nil
		},
		createMemberFunc: func(_ context.Context, params domain.CreateMemberParams) (domain.ProjectMember, error) {
			if params.UserID != "user-2" || params.InvitedBy != "user-1" {
				t.Fatalf("unexpected params: %+v", params)
			}
			return domain.ProjectMember{
				ID:        "mem-2",
				ProjectID: params.ProjectID,
				UserID:    params.UserID,
				Role:      params.Role,
			}, nil
		},
	}
	users := &stubUsersStore{
		t: t,
		getUserByEmailFunc: func(_ context.Context, email string) (domain.UserWithSecrets, error) {
			return domain.UserWithSecrets{
				User: domain.User{ID: "user-2", Email: email, Username: "grace"},
			}, nil
		},
	}
	h, token := projectTestRouter(t, projects, members, users)

	body := `{"email":"grace@example.com","role":"member"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/proj-1/members", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp memberResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "mem-2" || resp.Username != "grace" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	codec := testTokenCodec()
	h := NewRouter(RouterOpts{
		Auth:       &service.AuthService{Users: &stubUsersStore{t: t}, Codec: codec},
		Codec:      codec,
		CORSOrigin: "https://app.example.com",
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials allowed")
	}
}
