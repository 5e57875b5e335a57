package models

import (
	"time"
)

// Website describes a monitored site as the backend reports it.
type Website struct {
	ID               int        `json:"id"`
	Name             string     `json:"website_name"`
	URL              string     `json:"website_url"`
	IntervalMinutes  int        `json:"interval"`
	LastStatus       bool       `json:"last_status"`
	LastResponseTime *float64   `json:"last_response_time,omitempty"`
	LastChecked      *time.Time `json:"last_checked,omitempty"`
}

// Metrics summarises a website over the trailing 24 hours.
type Metrics struct {
	Uptime24h      float64 `json:"uptime_24h"`
	AvgResponse24h float64 `json:"avg_response_24h"`
	TotalChecks24h int     `json:"total_check_24h"`
}

// CheckRecord captures the outcome of a single backend probe.
type CheckRecord struct {
	ID           int       `json:"id"`
	CheckedAt    time.Time `json:"checked_at"`
	Status       bool      `json:"status"`
	ResponseTime float64   `json:"response_time"`
	StatusCode   int       `json:"status_code"`
}

// WebsiteDetail is the full pull snapshot for one website.
type WebsiteDetail struct {
	Website      Website       `json:"website"`
	Metrics      Metrics       `json:"metrics"`
	RecentChecks []CheckRecord `json:"recent_checks"`
}

// UserProfile identifies the logged-in account.
type UserProfile struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}
