package domain

import "time"

// Researcher is a projection rebuilt from contributions and payouts.
// It is never persisted as a source of truth.
type Researcher struct {
	Identity
	TotalContributions int       `json:"totalContributions"`
	TotalEarned        string    `json:"totalEarned"`
	WeeklyEarnings     string    `json:"weeklyEarnings"`
	JoinDate           time.Time `json:"joinDate,omitempty"`
	Active             bool      `json:"active"`
}
