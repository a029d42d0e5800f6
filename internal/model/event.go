package model

import "time"

// ProfileEventKind enumerates the durable profile mutations the
// orchestrator can request. They are fire-and-forget: the orchestrator
// emits them and never waits for persistence.
type ProfileEventKind string

const (
	EventSearchLogged  ProfileEventKind = "search_logged"
	EventVisitRecorded ProfileEventKind = "visit_recorded"
	EventFavoriteAdded ProfileEventKind = "favorite_added"
)

// ProfileEvent asks the profile store to persist one change.
type ProfileEvent struct {
	Kind     ProfileEventKind `json:"kind"`
	UserID   string           `json:"user_id"`
	Query    string           `json:"query,omitempty"`
	Place    string           `json:"place,omitempty"`
	Category string           `json:"category,omitempty"`
	Rating   int              `json:"rating,omitempty"`
	At       time.Time        `json:"at"`
}
