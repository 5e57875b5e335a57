package models

import (
	"time"
)

// WebsitePatch carries the website fields a push frame may update. Pointer
// fields distinguish an absent field from a zero value, so merging stays
// field-level instead of replacing the whole struct.
type WebsitePatch struct {
	ID               *int       `json:"id,omitempty"`
	Name             *string    `json:"website_name,omitempty"`
	URL              *string    `json:"website_url,omitempty"`
	IntervalMinutes  *int       `json:"interval,omitempty"`
	LastStatus       *bool      `json:"last_status,omitempty"`
	LastResponseTime *float64   `json:"last_response_time,omitempty"`
	LastChecked      *time.Time `json:"last_checked,omitempty"`
}

// StatusUpdate is one inbound push frame from the monitor channel.
type StatusUpdate struct {
	Website  WebsitePatch `json:"website"`
	Metrics  Metrics      `json:"metrics"`
	NewCheck CheckRecord  `json:"new_check"`
}

// WebsiteID returns the patched website id, if the frame carried one.
func (p WebsitePatch) WebsiteID() (int, bool) {
	if p.ID == nil {
		return 0, false
	}
	return *p.ID, true
}

// ApplyTo merges the patch into w. Fields the patch does not carry keep
// their prior value.
func (p WebsitePatch) ApplyTo(w *Website) {
	if p.ID != nil {
		w.ID = *p.ID
	}
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.URL != nil {
		w.URL = *p.URL
	}
	if p.IntervalMinutes != nil {
		w.IntervalMinutes = *p.IntervalMinutes
	}
	if p.LastStatus != nil {
		w.LastStatus = *p.LastStatus
	}
	if p.LastResponseTime != nil {
		v := *p.LastResponseTime
		w.LastResponseTime = &v
	}
	if p.LastChecked != nil {
		v := *p.LastChecked
		w.LastChecked = &v
	}
}

// ObservedAt returns the timestamp a frame should reset the live timer to:
// the patched last_checked when present, otherwise the new check's time.
func (u StatusUpdate) ObservedAt() (time.Time, bool) {
	if u.Website.LastChecked != nil {
		return *u.Website.LastChecked, true
	}
	if !u.NewCheck.CheckedAt.IsZero() {
		return u.NewCheck.CheckedAt, true
	}
	return time.Time{}, false
}
