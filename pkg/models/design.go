package models

import "time"

// DesignRequest is a user's request for a generated architecture design.
type DesignRequest struct {
	Prompt   string
	Provider Provider
	Model    string
}

// DesignResult is a stored generation outcome.
type DesignResult struct {
	ID         string
	IdentityID string
	Provider   Provider
	Tier       string // "user" or "system"
	Content    string
	CreatedAt  time.Time
}
