package models

import "time"

// Portfolio groups trades under a named account. Management beyond
// create/list lives outside this service.
type Portfolio struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
}
