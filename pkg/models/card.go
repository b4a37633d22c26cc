package models

import "github.com/google/uuid"

// Card is a catalogued item. The internal ID is opaque and stable once
// assigned; OID is the identifier the source collection supplied, normalized
// to a string. (game, oid) is unique.
type Card struct {
	ID     uuid.UUID `json:"id"`
	OID    string    `json:"oid"`
	Name   string    `json:"name"`
	GameID uuid.UUID `json:"game"`
}

// CardInput is the identifying part of one raw record, used to upsert cards
// before their attributes are reconciled.
type CardInput struct {
	OID  string
	Name string
}

// CardAttribute is one (card, attribute, value) row destined for a typed
// attribute table. Which table is decided by the runtime type of Value.
type CardAttribute struct {
	CardID    uuid.UUID
	Attribute string
	Value     any
}

// CardOutput is a row of the denormalized read view with the card's
// attributes collapsed into a single mapping.
type CardOutput struct {
	ID         uuid.UUID      `json:"id"`
	OID        string         `json:"oid"`
	Name       string         `json:"name"`
	Game       string         `json:"game"`
	Attributes map[string]any `json:"attributes"`
}
