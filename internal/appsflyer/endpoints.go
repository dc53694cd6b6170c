package appsflyer

import (
	"fmt"
	"strings"
)

// Endpoint describes one report export.
type Endpoint struct {
	Name      string // stable identifier used in logs, metrics and archive keys
	Path      string // path template; %s is the app ID
	TimeField string // header holding the row's date or timestamp
	Aggregate bool   // pre-summarized per date and source, not one row per event
}

// URL renders the endpoint's absolute URL for appID.
func (e Endpoint) URL(baseURL, appID string) string {
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(e.Path, appID)
}

var (
	DailyReport = Endpoint{
		Name:      "daily_report",
		Path:      "/api/agg-data/export/app/%s/daily_report/v5",
		TimeField: "Date",
		Aggregate: true,
	}
	Installs = Endpoint{
		Name:      "installs_report",
		Path:      "/api/raw-data/export/app/%s/installs_report/v5",
		TimeField: "Install Time",
	}
	BlockedInstallsRT = Endpoint{
		Name:      "blocked_installs_report",
		Path:      "/api/raw-data/export/app/%s/blocked_installs_report/v5",
		TimeField: "Install Time",
	}
	BlockedInstallsPA = Endpoint{
		Name:      "detection",
		Path:      "/api/raw-data/export/app/%s/detection/v5",
		TimeField: "Install Time",
	}
	BlockedInAppEvents = Endpoint{
		Name:      "blocked_in_app_events_report",
		Path:      "/api/raw-data/export/app/%s/blocked_in_app_events_report/v5",
		TimeField: "Event Time",
	}
	FraudPostInApps = Endpoint{
		Name:      "fraud-post-inapps",
		Path:      "/api/raw-data/export/app/%s/fraud-post-inapps/v5",
		TimeField: "Event Time",
	}
	BlockedClicks = Endpoint{
		Name:      "blocked_clicks_report",
		Path:      "/api/raw-data/export/app/%s/blocked_clicks_report/v5",
		TimeField: "Click Time",
	}
	BlockedInstallPostbacks = Endpoint{
		Name:      "blocked_install_postbacks",
		Path:      "/api/raw-data/export/app/%s/blocked_install_postbacks/v5",
		TimeField: "Install Time",
	}
	InAppEvents = Endpoint{
		Name:      "in_app_events_report",
		Path:      "/api/raw-data/export/app/%s/in_app_events_report/v5",
		TimeField: "Event Time",
	}
)

// Endpoints returns the full fixed set in declaration order.
func Endpoints() []Endpoint {
	return []Endpoint{
		DailyReport,
		Installs,
		BlockedInstallsRT,
		BlockedInstallsPA,
		BlockedInAppEvents,
		FraudPostInApps,
		BlockedClicks,
		BlockedInstallPostbacks,
		InAppEvents,
	}
}
