package models

import "github.com/google/uuid"

// Game is a named grouping of cards. Aliases are alternate names matched
// exactly (case-insensitively) when querying; they are replaced wholesale on
// every ingestion run.
type Game struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Aliases []string  `json:"aliases,omitempty"`
}
