package console

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"cmsconsole/cmd/internal/notify"
	v1 "cmsconsole/shared/contracts/notices/v1"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageSet map[string]*template.Template

var pageNames = []string{"login", "dashboard", "services", "projects", "project_detail", "team", "site"}

func parsePages() (pageSet, error) {
	base, err := template.New("base").ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	out := make(pageSet, len(pageNames))
	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

type navItem struct {
	Label string
	Path  string
}

var navItems = []navItem{
	{"Dashboard", DashboardPath},
	{"Services", DashboardPath + "/services"},
	{"Projects", DashboardPath + "/projects"},
	{"Team", DashboardPath + "/team"},
	{"Site Management", DashboardPath + "/site-management"},
}

var routeTitles = map[string]string{
	DashboardPath:                      "Dashboard",
	DashboardPath + "/services":        "Services",
	DashboardPath + "/team":            "Team",
	DashboardPath + "/site-management": "Site Management",
}

// pageTitle is the header title for path. Every project page is "Projects"; item
// pages under a section take the section's title; anything else is "Dashboard".
func pageTitle(path string) string {
	if strings.HasPrefix(path, DashboardPath+"/projects") {
		return "Projects"
	}
	path = strings.TrimSuffix(path, "/")
	for p := path; strings.HasPrefix(p, DashboardPath+"/"); p = p[:strings.LastIndex(p, "/")] {
		if t, ok := routeTitles[p]; ok {
			return t
		}
	}
	return "Dashboard"
}

type view struct {
	Title       string
	Path        string
	CSRF        string
	Notices     []notify.Notice
	Nav         []navItem
	Events      string
	Subprotocol string
	Data        any
}

// render shows the tab's pending notices on the page and writes it with status.
func (c *Console) render(w http.ResponseWriter, r *http.Request, name string, status int, data any) {
	t, ok := c.pages[name]
	if !ok {
		c.log.Error("console.render.unknown_page", "page", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	v := view{
		Title:       pageTitle(r.URL.Path),
		Path:        r.URL.Path,
		CSRF:        csrfFrom(r.Context()),
		Nav:         navItems,
		Subprotocol: v1.Subprotocol,
		Data:        data,
	}
	if c.events != nil {
		v.Events = EventsPath
	}
	tabID := tabOf(r)
	v.Notices = c.notices.Pending(tabID)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, v); err != nil {
		c.log.Error("console.render.fail", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Shown notices leave the queue; ones pushed during rendering stay for the next page.
	for _, n := range v.Notices {
		c.notices.Dismiss(tabID, n.ID)
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// back redirects to target after a mutation (POST/redirect/GET).
func back(w http.ResponseWriter, r *http.Request, target string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusSeeOther)
}
