package console

import (
	"context"
	"net/http"

	"cmsconsole/cmd/internal/aggregate"
	"cmsconsole/cmd/internal/auth/guard"
	"cmsconsole/cmd/internal/upstream"
)

type countCard struct {
	Label string
	Count int
	Path  string
}

type dashboardData struct {
	Cards []countCard
}

// handleDashboard fetches every resource count concurrently. Each failed fetch yields
// one error notice and a zero count; the others still render.
func (c *Console) handleDashboard(w http.ResponseWriter, r *http.Request) {
	token, _ := guard.TokenFrom(r.Context())
	tabID := tabOf(r)

	results := aggregate.Collect(r.Context(),
		aggregate.Task[int]{Name: "services", Fetch: func(ctx context.Context) (int, error) {
			return upstream.Count(c.api.ListServices(ctx, token))
		}},
		aggregate.Task[int]{Name: "projects", Fetch: func(ctx context.Context) (int, error) {
			return upstream.Count(c.api.ListProjects(ctx, token))
		}},
		aggregate.Task[int]{Name: "team", Fetch: func(ctx context.Context) (int, error) {
			return upstream.Count(c.api.ListTeam(ctx, token))
		}},
	)

	for _, f := range results.Failed() {
		c.log.Warn("console.dashboard.fetch.fail", "resource", f.Name, "err", f.Err)
		c.metrics.FetchFailure(f.Name)
		c.notices.Error(tabID, "Failed to fetch "+f.Name)
	}

	counts := results.Values()
	c.render(w, r, "dashboard", http.StatusOK, dashboardData{Cards: []countCard{
		{Label: "Services", Count: counts["services"], Path: DashboardPath + "/services"},
		{Label: "Projects", Count: counts["projects"], Path: DashboardPath + "/projects"},
		{Label: "Team Members", Count: counts["team"], Path: DashboardPath + "/team"},
	}})
}
