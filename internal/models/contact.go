package models

import "time"

// Contact is a CRM contact that can appear in a dispatch audience.
// Opted-out and blocked contacts are excluded when an audience is
// resolved, never at send time.
type Contact struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PhoneNumber    string    `json:"phone_number" db:"phone_number"`
	Name           string    `json:"name" db:"name"`
	Tag            string    `json:"tag" db:"tag"`
	OptedOut       bool      `json:"opted_out" db:"opted_out"`
	IsBlocked      bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
