package management

import (
	"context"
	"errors"
	"strings"

	"annopedia/internal/auth"
	"annopedia/internal/logging"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// CreateProjectRequest is the body of a project creation. Pointers
// distinguish absent fields from empty ones.
type CreateProjectRequest struct {
	ProjectType             *string `json:"project_type"`
	Name                    *string `json:"name"`
	Description             *string `json:"description"`
	TalkMarkdown            *string `json:"talk_markdown"`
	CharacterLevelSelection *bool   `json:"character_level_selection"`
}

// CategoryRequest is the body of a category creation.
type CategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	KeyBinding  *string `json:"key_binding"`
}

// AdministratorRequest names a contributor to promote by e-mail.
type AdministratorRequest struct {
	Email string `json:"email"`
}

// CreateProject creates a project of one of the supported types and makes
// the caller its first administrator.
func (s *Service) CreateProject(ctx context.Context, caller *auth.Principal, req CreateProjectRequest) (*ProjectView, error) {
	var missing []string
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"project_type", req.ProjectType},
		{"name", req.Name},
		{"description", req.Description},
		{"talk_markdown", req.TalkMarkdown},
	} {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, types.Unprocessable("Missing request data (%s)", strings.Join(missing, ", "))
	}

	ptype, ok := types.ParseProjectType(*req.ProjectType)
	if !ok {
		return nil, types.Unsupported("Project type %s is not supported", *req.ProjectType)
	}
	p := &types.Project{
		Type:         ptype,
		Name:         *req.Name,
		Description:  *req.Description,
		TalkMarkdown: *req.TalkMarkdown,
	}
	if ptype.NeedsCharacterLevel() {
		if req.CharacterLevelSelection == nil {
			return nil, types.Invalid("Missing request data (character level selection)")
		}
		p.CharacterLevel = req.CharacterLevelSelection
	}

	p, err := s.store.CreateProject(ctx, p, caller.Contributor.ID)
	if err != nil {
		return nil, err
	}
	audit(logging.AuditProjectCreate, caller, p, map[string]interface{}{"type": string(p.Type), "name": p.Name})
	return s.view(ctx, p, false)
}

// view renders p with its administrators, and its categories when asked.
func (s *Service) view(ctx context.Context, p *types.Project, withCategories bool) (*ProjectView, error) {
	admins, err := s.store.ListAdministrators(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	v := projectView(p, admins)
	if withCategories && p.Type.HasCategories() {
		cats, err := s.store.ListCategories(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		v.Categories = make([]*CategoryView, 0, len(cats))
		for _, c := range cats {
			v.Categories = append(v.Categories, &CategoryView{Category: c, ProjectURL: p.URL})
		}
	}
	return v, nil
}

// ListProjects lists projects in creation order. A non-empty projectType
// keeps only projects whose canonical type name matches it exactly.
func (s *Service) ListProjects(ctx context.Context, projectType string) ([]*ProjectView, error) {
	var filter *types.ProjectType
	if projectType != "" {
		pt := types.ProjectType(projectType)
		filter = &pt
	}
	projects, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*ProjectView, 0, len(projects))
	for _, p := range projects {
		v, err := s.view(ctx, p, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetProject returns one project. Projects with categories include them.
func (s *Service) GetProject(ctx context.Context, url string) (*ProjectView, error) {
	p, _, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, true)
}

// UpdateProject changes the name, description or talk markdown of a project.
func (s *Service) UpdateProject(ctx context.Context, caller *auth.Principal, url string, patch types.ProjectPatch) (*ProjectView, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	p, err = s.store.UpdateProject(ctx, p.ID, patch)
	if err != nil {
		return nil, err
	}
	audit(logging.AuditProjectUpdate, caller, p, nil)
	return s.view(ctx, p, false)
}

// DeleteProject deletes a project and everything it owns.
func (s *Service) DeleteProject(ctx context.Context, caller *auth.Principal, url string) (*Message, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		return nil, err
	}
	audit(logging.AuditProjectDelete, caller, p, map[string]interface{}{"name": p.Name})
	return message("Project %s deleted", p.Name), nil
}

// AddAdministrator makes the contributor with the given e-mail an
// administrator of the project.
func (s *Service) AddAdministrator(ctx context.Context, caller *auth.Principal, url string, req AdministratorRequest) (*Message, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetContributorByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Contributor with email %s does not exist", req.Email)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.AddAdministrator(ctx, p.ID, c.ID); err != nil {
		return nil, err
	}
	audit(logging.AuditAdminAdd, caller, p, map[string]interface{}{"administrator": c.Username})
	return message("Administrator %s added to project %s", c.Username, p.Name), nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

// CreateCategory adds a category to a text classification or named entity
// recognition project. Entity categories have no key binding.
func (s *Service) CreateCategory(ctx context.Context, caller *auth.Principal, url string, req CategoryRequest) (*CategoryView, error) {
	p, _, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	if !p.Type.HasCategories() {
		return nil, types.NotFound("Project does not have a category type")
	}
	if req.Name == nil || *req.Name == "" {
		return nil, types.Unprocessable("Missing request data (name)")
	}

	c := &types.Category{ProjectID: p.ID, Name: *req.Name}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.KeyBinding != nil && p.Type == types.TextClassification {
		c.KeyBinding = *req.KeyBinding
	}
	c, err = s.store.CreateCategory(ctx, c)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, types.Conflict("Category %s already exists in project %s", *req.Name, p.Name)
	}
	if err != nil {
		return nil, err
	}
	audit(logging.AuditCategoryCreate, caller, p, map[string]interface{}{"category": c.Name})
	return &CategoryView{Category: c, ProjectURL: p.URL}, nil
}

// DeleteCategory removes a category that no entry or highlight uses.
func (s *Service) DeleteCategory(ctx context.Context, caller *auth.Principal, url string, categoryID int64) (*CategoryView, error) {
	p, _, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	if !p.Type.HasCategories() {
		return nil, types.NotFound("Project does not have a category type")
	}
	c, err := s.store.DeleteCategory(ctx, p.ID, categoryID)
	switch {
	case errors.Is(err, store.ErrNoRows):
		return nil, types.Invalid("Category with ID %d is not found in the project %s", categoryID, p.Name)
	case errors.Is(err, store.ErrInUse):
		return nil, types.Conflict("Category with ID %d is used by annotations and cannot be deleted", categoryID)
	case err != nil:
		return nil, err
	}
	audit(logging.AuditCategoryDelete, caller, p, map[string]interface{}{"category": c.Name})
	return &CategoryView{Category: c, ProjectURL: p.URL, CategoryID: categoryID}, nil
}
