package console

import (
	"context"
	"net/http"
	"net/url"
)

// siteSection is one tab of the site management page.
type siteSection struct {
	Key   string
	Label string
	Spec  formSpec
}

var siteSections = []siteSection{
	{Key: "homepage", Label: "Homepage", Spec: formSpec{
		Fields: []fieldSpec{{Name: "heroTitle", Label: "Hero Title"}, {Name: "heroDesc", Label: "Hero Description", Multiline: true}},
		Files:  []fileSpec{{Name: "heroImage", Label: "Hero Image", Max: 1}},
	}},
	{Key: "services", Label: "Services", Spec: formSpec{
		Fields: []fieldSpec{{Name: "serviceTitle", Label: "Service Title"}, {Name: "serviceDesc", Label: "Service Description", Multiline: true}},
	}},
	{Key: "projects", Label: "Projects", Spec: formSpec{
		Fields: []fieldSpec{{Name: "projectName", Label: "Project Name"}, {Name: "projectDesc", Label: "Project Description", Multiline: true}},
		Files:  []fileSpec{{Name: "projectImage", Label: "Project Image", Max: 1}},
	}},
	{Key: "about", Label: "About Us", Spec: formSpec{
		Fields: []fieldSpec{{Name: "aboutTitle", Label: "About Title"}, {Name: "aboutContent", Label: "About Content", Multiline: true}},
	}},
	{Key: "news", Label: "News", Spec: formSpec{
		Fields: []fieldSpec{{Name: "newsTitle", Label: "News Title"}, {Name: "newsContent", Label: "News Content", Multiline: true}},
	}},
	{Key: "testimonials", Label: "Testimonials", Spec: formSpec{
		Fields: []fieldSpec{{Name: "clientName", Label: "Client Name"}, {Name: "feedback", Label: "Feedback", Multiline: true}},
	}},
	{Key: "contact", Label: "Contact Info", Spec: formSpec{
		Fields: []fieldSpec{{Name: "email", Label: "Email"}, {Name: "phone", Label: "Phone"}, {Name: "address", Label: "Address", Multiline: true}},
	}},
	{Key: "settings", Label: "Site Settings", Spec: formSpec{
		Fields: []fieldSpec{{Name: "siteTitle", Label: "Site Title"}, {Name: "metaDesc", Label: "Meta Description", Multiline: true}},
		Files:  []fileSpec{{Name: "logo", Label: "Logo", Max: 1}},
	}},
}

func findSection(key string) (siteSection, bool) {
	for _, s := range siteSections {
		if s.Key == key {
			return s, true
		}
	}
	return siteSection{}, false
}

type siteTab struct {
	Key    string
	Label  string
	Href   string
	Active bool
	Form   formView
}

type siteData struct {
	Tabs []siteTab
}

func sitePath(key string) string {
	return DashboardPath + "/site-management?tab=" + url.QueryEscape(key)
}

func (c *Console) handleSite(w http.ResponseWriter, r *http.Request) {
	active := r.URL.Query().Get("tab")
	if _, ok := findSection(active); !ok {
		active = siteSections[0].Key
	}

	csrf := csrfFrom(r.Context())
	data := siteData{Tabs: make([]siteTab, 0, len(siteSections))}
	for _, s := range siteSections {
		data.Tabs = append(data.Tabs, siteTab{
			Key:    s.Key,
			Label:  s.Label,
			Href:   sitePath(s.Key),
			Active: s.Key == active,
			Form:   s.Spec.view(csrf, DashboardPath+"/site-management/"+s.Key, "Save "+s.Label, newFormState()),
		})
	}
	c.render(w, r, "site", http.StatusOK, data)
}

func (c *Console) handleSiteSave(w http.ResponseWriter, r *http.Request) {
	section, ok := findSection(r.PathValue("section"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	form, _, ok := c.readContentForm(w, r, section.Spec, false)
	if !ok {
		return
	}
	c.mutate(w, r, sitePath(section.Key), section.Label+" content saved successfully", serverOr("Failed to save "+section.Label),
		func(ctx context.Context, token string) error {
			return c.api.SaveSiteSection(ctx, token, section.Key, form)
		})
}
