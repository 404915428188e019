package model

import "time"

// Campaign is a user's outreach project. Every campaign owns exactly one
// progress document; ownership is enforced in the store by a user_id filter
// on every read and write.
type Campaign struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CompanyName    string    `json:"company_name"`
	CompanyWebsite string    `json:"company_website"`
	Language       string    `json:"language"`
	ProgressID     string    `json:"progress_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserDetails holds per-user defaults read when building prompt context.
type UserDetails struct {
	UserID      string `json:"user_id"`
	CompanyName string `json:"company_name"`
	CompanyURL  string `json:"company_url"`
	Language    string `json:"language"`
}
