package models

import (
	"time"
)

// Tenant is one customer organization. All orchestration state is scoped
// to a tenant; the auth middleware resolves it from the caller's token.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
