package console

import (
	"context"
	"net/http"

	"cmsconsole/cmd/internal/upstream"
)

var serviceForm = formSpec{
	Fields: []fieldSpec{
		{Name: "title", Label: "Title", Required: "Please enter a title"},
		{Name: "description", Label: "Description", Required: "Please enter a description", Multiline: true},
	},
	Files: []fileSpec{
		{Name: "image", Label: "Image", RequiredOnCreate: "Please upload an image", Max: 1},
	},
}

func (c *Console) handleServices(w http.ResponseWriter, r *http.Request) {
	c.servicesPage(w, r, r.PathValue("id"), nil, http.StatusOK)
}

func (c *Console) servicesPage(w http.ResponseWriter, r *http.Request, editID string, state *formState, status int) {
	items, err := c.api.ListServices(r.Context(), bearer(r))
	if err != nil {
		c.fetchFailed(r, "services", err, "Failed to fetch services")
	}

	action, submit := resourcePath("services"), "Create"
	st := newFormState()
	if editID != "" {
		action, submit = resourcePath("services", editID), "Update"
		if s, ok := findByID(items, editID); ok {
			st.Values["title"] = s.Title
			st.Values["description"] = s.Description
		}
	}
	if state != nil {
		st = *state
	}

	c.render(w, r, "services", status, listPage[upstream.Service]{
		Items:   items,
		Editing: editID,
		Form:    serviceForm.view(csrfFrom(r.Context()), action, submit, st),
	})
}

func (c *Console) handleServiceCreate(w http.ResponseWriter, r *http.Request) {
	form, state, ok := c.readContentForm(w, r, serviceForm, true)
	if !ok {
		return
	}
	if state.Invalid() {
		c.servicesPage(w, r, "", &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("services"), "Service created successfully", serverOr("Failed to save service"),
		func(ctx context.Context, token string) error {
			return c.api.CreateService(ctx, token, form)
		})
}

func (c *Console) handleServiceUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, state, ok := c.readContentForm(w, r, serviceForm, false)
	if !ok {
		return
	}
	if state.Invalid() {
		c.servicesPage(w, r, id, &state, http.StatusUnprocessableEntity)
		return
	}
	c.mutate(w, r, resourcePath("services"), "Service updated successfully", serverOr("Failed to save service"),
		func(ctx context.Context, token string) error {
			return c.api.UpdateService(ctx, token, id, form)
		})
}

func (c *Console) handleServiceDelete(w http.ResponseWriter, r *http.Request) {
	if err := c.parseForm(w, r); err != nil {
		c.rejectForm(w, r, err)
		return
	}
	id := r.PathValue("id")
	c.mutate(w, r, resourcePath("services"), "Service deleted!", fixed("Failed to delete service"),
		func(ctx context.Context, token string) error {
			return c.api.DeleteService(ctx, token, id)
		})
}
