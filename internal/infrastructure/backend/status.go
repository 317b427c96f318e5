package backend

import (
	"github.com/tidwall/gjson"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

var statusPaths = []string{"status", "dashboard.status", "leads.status", "epinet.status"}

// PayloadStatus probes a raw analytics payload for a still-computing status
// without decoding it. It returns the first pending status found, or
// "complete" when every section is ready.
func PayloadStatus(body []byte) string {
	for _, r := range gjson.GetManyBytes(body, statusPaths...) {
		if analytics.IsPending(r.String()) {
			return r.String()
		}
	}
	return analytics.StatusComplete
}

// pendingPayload builds the partial payload of a still-computing response from
// its section markers. The placeholder data of such bodies is never decoded.
func pendingPayload(body []byte, status string) *analytics.Payload {
	p := &analytics.Payload{Status: status}
	if r := gjson.GetBytes(body, "dashboard.status"); r.Exists() {
		p.Dashboard = &analytics.DashboardAnalytics{Status: r.String()}
	}
	if r := gjson.GetBytes(body, "leads.status"); r.Exists() {
		p.Leads = &analytics.LeadMetrics{Status: r.String()}
	}
	if r := gjson.GetBytes(body, "epinet"); r.Exists() {
		p.Epinet = &analytics.SankeyDiagram{ID: r.Get("id").String(), Status: r.Get("status").String()}
	}
	return p
}
