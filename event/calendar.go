package event

import (
	"github.com/google/uuid"
	"time"
)

// EventsChangedEvent is published whenever stored calendar events changed.
// Consumers must refetch affected events instead of patching local copies.
type EventsChangedEvent struct {
	// EventIDs are the ids of the changed events.
	EventIDs []uuid.UUID `json:"event_ids"`
}

// AssignmentAppliedEvent is published when a calendar event was assigned to a
// family member or unassigned.
type AssignmentAppliedEvent struct {
	// EventID is the id of the assigned event.
	EventID uuid.UUID `json:"event_id"`
	// AssignedTo is the new assignee. Invalid when the event was unassigned.
	AssignedTo uuid.NullUUID `json:"assigned_to"`
	// Version is the event version after the assignment.
	Version int `json:"version"`
}

// ConflictResolvedEvent is published when a schedule conflict between two
// events was resolved.
type ConflictResolvedEvent struct {
	// EventAID is the id of the first event of the resolved pair.
	EventAID uuid.UUID `json:"event_a_id"`
	// EventBID is the id of the second event of the resolved pair.
	EventBID uuid.UUID `json:"event_b_id"`
	// Reason describes why the conflict could be resolved.
	Reason string `json:"reason"`
	// AssignedUserID is the family member both events are assigned to.
	AssignedUserID uuid.UUID `json:"assigned_user_id"`
}

// ConflictReportEvent is published with the current scheduling conflicts so
// that display boards can show them without talking to the REST API.
type ConflictReportEvent struct {
	// GeneratedAt is when the report was computed.
	GeneratedAt time.Time `json:"generated_at"`
	// WindowStart is the begin of the covered time range.
	WindowStart time.Time `json:"window_start"`
	// WindowEnd is the end of the covered time range.
	WindowEnd time.Time `json:"window_end"`
	// Conflicts are the conflicting event pairs in the window.
	Conflicts []EventConflict `json:"conflicts"`
}

// EventConflict is a conflicting event pair in ConflictReportEvent.
type EventConflict struct {
	// EventAID is the id of the first event.
	EventAID uuid.UUID `json:"event_a_id"`
	// EventATitle is the title of the first event.
	EventATitle string `json:"event_a_title"`
	// EventBID is the id of the second event.
	EventBID uuid.UUID `json:"event_b_id"`
	// EventBTitle is the title of the second event.
	EventBTitle string `json:"event_b_title"`
	// AssignedTo is the id of the user both events are assigned to.
	AssignedTo uuid.UUID `json:"assigned_to"`
}
