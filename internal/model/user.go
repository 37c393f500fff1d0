// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// PasswordHash never leaves the server: the json:"-" tag keeps it out of
// every response. IsNew marks a newly acquired member; it counts toward a
// team's novelty term and stays set until an operator clears it.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsNew        bool      `json:"is_new"`
	CreatedAt    time.Time `json:"created_at"`
}
