package model

import (
	"encoding/json"
	"time"
)

const (
	StatusPlanned   = "PLANNED"
	StatusActive    = "ACTIVE"
	StatusCompleted = "COMPLETED"
	StatusBlocked   = "BLOCKED"
)

// ValidStatus reports whether s is a known milestone status
func ValidStatus(s string) bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

type Milestone struct {
	ID             int                    `json:"id"`
	TimelineID     int                    `json:"timeline_id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Type           string                 `json:"type"`
	Order          int                    `json:"order"`
	Duration       int                    `json:"duration"` // days, >= 1
	StartDate      time.Time              `json:"start_date"`
	EndDate        time.Time              `json:"end_date"`
	CompletionDate *time.Time             `json:"completion_date"`
	Status         string                 `json:"status"`
	Hidden         bool                   `json:"hidden"`
	Details        map[string]interface{} `json:"details"`
	PlannedText    string                 `json:"planned_text"`
	ActiveText     string                 `json:"active_text"`
	CompletedText  string                 `json:"completed_text"`
	BlockedText    string                 `json:"blocked_text"`
	UpdatedBy      *int                   `json:"updated_by,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	DeletedAt      *time.Time             `json:"-"`
}

// Clone returns a deep copy, including details and pointer fields
func (m *Milestone) Clone() *Milestone {
	c := *m
	if m.CompletionDate != nil {
		d := *m.CompletionDate
		c.CompletionDate = &d
	}
	if m.UpdatedBy != nil {
		u := *m.UpdatedBy
		c.UpdatedBy = &u
	}
	if m.DeletedAt != nil {
		d := *m.DeletedAt
		c.DeletedAt = &d
	}
	c.Details = cloneDetails(m.Details)
	return &c
}

// CursorDate is the date the next milestone in order starts after
func (m *Milestone) CursorDate() time.Time {
	if m.CompletionDate != nil {
		return Day(*m.CompletionDate)
	}
	return Day(m.EndDate)
}

func cloneDetails(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	// details only ever hold decoded JSON, so a JSON round trip is a faithful copy
	raw, err := json.Marshal(src)
	if err != nil {
		out := make(map[string]interface{}, len(src))
		for k, v := range src {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}
