package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Ref carries a document id. The API uses "_id"; some resources use "id".
type Ref struct {
	MongoID flexID `json:"_id,omitempty"`
	PlainID flexID `json:"id,omitempty"`
}

// ID returns the document id.
func (r Ref) ID() string {
	if r.MongoID != "" {
		return string(r.MongoID)
	}
	return string(r.PlainID)
}

// flexID accepts string or numeric JSON ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// Service is one offering shown on the public site.
type Service struct {
	Ref
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Project is one portfolio entry.
type Project struct {
	Ref
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Banner  string   `json:"banner"`
	Gallery []string `json:"gallery"`
}

// TeamMember is one staff profile.
type TeamMember struct {
	Ref
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Image string `json:"image"`
}

// decodeList accepts a bare array, {"<key>": [...]} or {"data": [...]}.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	for _, k := range []string{key, "data", "items"} {
		if v, ok := env[k]; ok {
			return decodeList[T](v, "")
		}
	}
	return nil, fmt.Errorf("no %q list in response", key)
}

func listResource[T any](ctx context.Context, c *Client, path, key, token string) ([]T, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &raw, false); err != nil {
		return nil, err
	}
	items, err := decodeList[T](raw, key)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}

// ListServices returns all services.
func (c *Client) ListServices(ctx context.Context, token string) ([]Service, error) {
	return listResource[Service](ctx, c, "/api/services", "services", token)
}

// CreateService uploads a new service.
func (c *Client) CreateService(ctx context.Context, token string, form Form) error {
	return c.doForm(ctx, http.MethodPost, "/api/services", token, form, nil)
}

// UpdateService replaces the service id.
func (c *Client) UpdateService(ctx context.Context, token, id string, form Form) error {
	return c.doForm(ctx, http.MethodPut, "/api/services/"+escape(id), token, form, nil)
}

// DeleteService removes the service id.
func (c *Client) DeleteService(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/services/"+escape(id), token, nil, nil, true)
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	return listResource[Project](ctx, c, "/api/projects", "projects", token)
}

// GetProject returns one project; the API wraps it as {"project": {...}}.
func (c *Client) GetProject(ctx context.Context, token, id string) (Project, error) {
	var resp struct {
		Project *Project `json:"project"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+escape(id), token, nil, &resp, false); err != nil {
		return Project{}, err
	}
	if resp.Project == nil {
		return Project{}, &APIError{Status: http.StatusNotFound, Message: "project not found"}
	}
	return *resp.Project, nil
}

// CreateProject uploads a new project.
func (c *Client) CreateProject(ctx context.Context, token string, form Form) error {
	return c.doForm(ctx, http.MethodPost, "/api/projects", token, form, nil)
}

// UpdateProject replaces the project id.
func (c *Client) UpdateProject(ctx context.Context, token, id string, form Form) error {
	return c.doForm(ctx, http.MethodPut, "/api/projects/"+escape(id), token, form, nil)
}

// DeleteProject removes the project id.
func (c *Client) DeleteProject(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+escape(id), token, nil, nil, true)
}

// ListTeam returns all team members.
func (c *Client) ListTeam(ctx context.Context, token string) ([]TeamMember, error) {
	return listResource[TeamMember](ctx, c, "/api/team", "team", token)
}

// CreateTeamMember uploads a new team member.
func (c *Client) CreateTeamMember(ctx context.Context, token string, form Form) error {
	return c.doForm(ctx, http.MethodPost, "/api/team", token, form, nil)
}

// UpdateTeamMember replaces the team member id.
func (c *Client) UpdateTeamMember(ctx context.Context, token, id string, form Form) error {
	return c.doForm(ctx, http.MethodPut, "/api/team/"+escape(id), token, form, nil)
}

// DeleteTeamMember removes the team member id.
func (c *Client) DeleteTeamMember(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/team/"+escape(id), token, nil, nil, true)
}

// SaveSiteSection writes one site-settings section.
func (c *Client) SaveSiteSection(ctx context.Context, token, section string, form Form) error {
	return c.doForm(ctx, http.MethodPut, "/api/site-settings/"+escape(section), token, form, nil)
}

// Count is a helper for dashboards: the number of items a list call returned.
func Count[T any](items []T, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
