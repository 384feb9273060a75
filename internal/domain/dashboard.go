package domain

// DashboardStats is the analytics summary shown on the dashboard.
type DashboardStats struct {
	Totals      map[string]int `json:"totals"`
	NewContacts int            `json:"newContacts"`
	OpenQuotes  int            `json:"openQuotes"`
	Subscribers int            `json:"subscribers"`
	Recent      []Activity     `json:"recentActivity,omitempty"`
}

// Activity is one entry of the dashboard's recent activity feed.
type Activity struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Created string `json:"createdAt"`
}

// Settings is the site configuration, a flat key/value document edited in
// bulk.
type Settings map[string]any
