// Package models defines data structures used throughout the feedback application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Location represents a physical spot that carries a QR code
type Location struct {
	ID         int            `json:"id" yaml:"id"`
	Code       string         `json:"code" yaml:"code"`
	Name       string         `json:"name" yaml:"name"`
	Category   string         `json:"category" yaml:"category"`
	Floor      sql.NullInt64  `json:"floor" yaml:"floor"`
	Status     sql.NullString `json:"status" yaml:"status"`
	StatusTime sql.NullTime   `json:"status_time" yaml:"status_time"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for Location to handle sql.Null types properly
func (l Location) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int        `json:"id"`
		Code       string     `json:"code"`
		Name       string     `json:"name"`
		Category   string     `json:"category"`
		Floor      *int64     `json:"floor"`
		Status     *string    `json:"status"`
		StatusTime *time.Time `json:"status_time"`
		CreatedAt  time.Time  `json:"created_at"`
	}{
		ID:         l.ID,
		Code:       l.Code,
		Name:       l.Name,
		Category:   l.Category,
		Floor:      nullInt64ToPointer(l.Floor),
		Status:     nullStringToPointer(l.Status),
		StatusTime: nullTimeToPointer(l.StatusTime),
		CreatedAt:  l.CreatedAt,
	})
}

// IssueRef is a selected issue recorded with a feedback submission
type IssueRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// FeedbackMeta is the structured payload stored alongside each feedback row
type FeedbackMeta struct {
	Issues     []IssueRef `json:"issues"`
	Note       string     `json:"note"`
	ReportedAt time.Time  `json:"reported_at"`
}

// Feedback represents a single visitor submission as stored in the database
type Feedback struct {
	ID         int            `json:"id" yaml:"id"`
	LocationID int            `json:"location_id" yaml:"location_id"`
	Message    string         `json:"message" yaml:"message"`
	Meta       sql.NullString `json:"-" yaml:"-"`
	Resolved   bool           `json:"resolved" yaml:"resolved"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// FeedbackView is a feedback row joined with its location, shaped for dashboards.
// When the stored meta cannot be parsed, Issues and Note are empty and Raw holds
// the original payload.
type FeedbackView struct {
	ID           int            `json:"id"`
	LocationID   int            `json:"location_id"`
	LocationCode string         `json:"location_code"`
	LocationName string         `json:"location_name"`
	Category     string         `json:"category"`
	Floor        *int64         `json:"floor"`
	Message      string     `json:"message"`
	Issues       []IssueRef `json:"issues"`
	Note         string     `json:"note"`
	Raw          string     `json:"raw,omitempty"`
	Resolved     bool       `json:"resolved"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StaffUser represents a floor-scoped staff account
type StaffUser struct {
	ID           int       `json:"id" yaml:"id"`
	Username     string    `json:"username" yaml:"username"`
	PasswordHash string    `json:"-" yaml:"-"` // Omit from JSON responses
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Floors       []int     `json:"floors,omitempty" yaml:"floors,omitempty"`
}

// Identity is the authenticated caller attached to a request after login
type Identity struct {
	IsAdmin  bool   `json:"is_admin"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Floors   []int  `json:"floors"`
}

// CanSeeFloor reports whether the identity may act on reports for the given
// floor. Admins see everything. Staff with no assigned floors see nothing.
func (i Identity) CanSeeFloor(floor *int64) bool {
	if i.IsAdmin {
		return true
	}
	if len(i.Floors) == 0 {
		return false
	}
	if floor == nil {
		return false
	}
	for _, f := range i.Floors {
		if int64(f) == *floor {
			return true
		}
	}
	return false
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullInt64ToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}
