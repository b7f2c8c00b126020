package console

import (
	"context"
	"net/http"

	"cmsconsole/cmd/internal/upstream"
)

var teamForm = formSpec{
	Fields: []fieldSpec{
		{Name: "name", Label: "Name", Required: "Please enter name"},
		{Name: "role", Label: "Role", Required: "Please enter role"},
		{Name: "email", Label: "Email", Required: "Please enter email"},
	},
	Files: []fileSpec{
		{Name: "image", Label: "Photo", RequiredOnCreate: "Please upload an image", Max: 1},
	},
}

func (c *Console) handleTeam(w http.ResponseWriter, r *http.Request) {
	c.teamPage(w, r, r.PathValue("id"), nil, http.StatusOK)
}

func (c *Console) teamPage(w http.ResponseWriter, r *http.Request, editID string, state *formState, status int) {
	items, err := c.api.ListTeam(r.Context(), bearer(r))
	if err != nil {
		c.fetchFailed(r, "team", err, "Failed to fetch team")
	}

	action, submit := resourcePath("team"), "Add"
	st := newFormState()
	if editID != "" {
		action, submit = resourcePath("team", editID), "Update"
		if m, ok := findByID(items, editID); ok {
			st.Values["name"] = m.Name
			st.Values["role"] = m.Role
			st.Values["email"] = m.Email
		}
	}
	if state != nil {
		st = *state
	}

	c.render(w, r, "team", status, listPage[upstream.TeamMember]{
		Items:   items,
		Editing: editID,
		Form:    teamForm.view(csrfFrom(r.Context()), action, submit, st),
	})
}

func (c *Console) handleTeamCreate(w http.ResponseWriter, r *http.Request) {
	form, state, ok := c.readContentForm(w, r, teamForm, true)
	if !ok {
		return
	}
	if state.Invalid() {
		c.teamPage(w, r, "", &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("team"), "Team member added!", serverOr("Failed to save team member"),
		func(ctx context.Context, token string) error {
			return c.api.CreateTeamMember(ctx, token, form)
		})
}

func (c *Console) handleTeamUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, state, ok := c.readContentForm(w, r, teamForm, false)
	if !ok {
		return
	}
	if state.Invalid() {
		c.teamPage(w, r, id, &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("team"), "Team member updated!", serverOr("Failed to save team member"),
		func(ctx context.Context, token string) error {
			return c.api.UpdateTeamMember(ctx, token, id, form)
		})
}

func (c *Console) handleTeamDelete(w http.ResponseWriter, r *http.Request) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return
	}
	id := r.PathValue("id")
	c.mutate(w, r, resourcePath("team"), "Member deleted!", fixed("Failed to delete team member"),
		func(ctx context.Context, token string) error {
			return c.api.DeleteTeamMember(ctx, token, id)
		})
}
