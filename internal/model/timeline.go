package model

import "time"

type Timeline struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	EndDate   *time.Time `json:"end_date"`
	UpdatedBy *int       `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
