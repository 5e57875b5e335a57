package metrics

import (
	"math"

	"sitewatch/internal/models"
)

// CheckSummary aggregates a website's recent checks for display. It stands
// in for the backend's rolling 24h metrics until a metrics frame arrives.
type CheckSummary struct {
	UptimePercent float64
	AvgResponseMS float64
	TotalChecks   int
	Passing       int
	Failing       int
}

// Summarize computes uptime and response statistics over the given checks.
func Summarize(checks []models.CheckRecord) CheckSummary {
	summary := CheckSummary{TotalChecks: len(checks)}
	if len(checks) == 0 {
		return summary
	}

	totalResponse := 0.0
	for _, check := range checks {
		if check.Status {
			summary.Passing++
		} else {
			summary.Failing++
		}
		totalResponse += check.ResponseTime
	}

	summary.UptimePercent = round2(float64(summary.Passing) / float64(summary.TotalChecks) * 100)
	summary.AvgResponseMS = round2(totalResponse / float64(summary.TotalChecks))
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
