package console

import (
	"context"
	"errors"
	"net/http"

	"cmsconsole/cmd/internal/upstream"
)

func (c *Console) projectForm() formSpec {
	return formSpec{
		Fields: []fieldSpec{
			{Name: "title", Label: "Project Title", Required: "Please enter a project title"},
			{Name: "content", Label: "Project Content", Required: "Please enter project content", Multiline: true},
		},
		Files: []fileSpec{
			{Name: "banner", Label: "Project Banner", Max: 1},
			{Name: "gallery", Label: "Project Gallery", Max: c.cfg.MaxGalleryFiles},
		},
	}
}

func (c *Console) handleProjects(w http.ResponseWriter, r *http.Request) {
	c.projectsPage(w, r, r.PathValue("id"), nil, http.StatusOK)
}

func (c *Console) projectsPage(w http.ResponseWriter, r *http.Request, editID string, state *formState, status int) {
	items, err := c.api.ListProjects(r.Context(), bearer(r))
	if err != nil {
		c.fetchFailed(r, "projects", err, "Failed to fetch projects")
	}

	action, submit := resourcePath("projects"), "Create"
	st := newFormState()
	if editID != "" {
		action, submit = resourcePath("projects", editID), "Update"
		if p, ok := findByID(items, editID); ok {
			st.Values["title"] = p.Title
			st.Values["content"] = p.Content
		}
	}
	if state != nil {
		st = *state
	}

	c.render(w, r, "projects", status, listPage[upstream.Project]{
		Items:   items,
		Editing: editID,
		Form:    c.projectForm().view(csrfFrom(r.Context()), action, submit, st),
	})
}

type projectDetail struct {
	Project upstream.Project
	Found   bool
}

func (c *Console) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := c.api.GetProject(r.Context(), bearer(r), id)
	if err != nil {
		c.fetchFailed(r, "projects", err, "Failed to load project details")

		status := http.StatusOK
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		c.render(w, r, "project_detail", status, projectDetail{})
		return
	}
	c.render(w, r, "project_detail", http.StatusOK, projectDetail{Project: p, Found: true})
}

func (c *Console) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	form, state, ok := c.readContentForm(w, r, c.projectForm(), true)
	if !ok {
		return
	}
	if state.Invalid() {
		c.projectsPage(w, r, "", &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("projects"), "Project created successfully!", serverOr("Failed to save project"),
		func(ctx context.Context, token string) error {
			return c.api.CreateProject(ctx, token, form)
		})
}

func (c *Console) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, state, ok := c.readContentForm(w, r, c.projectForm(), false)
	if !ok {
		return
	}
	if state.Invalid() {
		c.projectsPage(w, r, id, &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("projects"), "Project updated successfully!", serverOr("Failed to save project"),
		func(ctx context.Context, token string) error {
			return c.api.UpdateProject(ctx, token, id, form)
		})
}

func (c *Console) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return
	}
	id := r.PathValue("id")
	c.mutate(w, r, resourcePath("projects"), "Project deleted!", fixed("Failed to delete project"),
		func(ctx context.Context, token string) error {
			return c.api.DeleteProject(ctx, token, id)
		})
}
