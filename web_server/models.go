package web_server

import (
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/scheduling"
	"github.com/kinhub/kinhub-server/store"
	"time"
)

// errorResponse is the body for all error responses.
type errorResponse struct {
	// Code is the error code from errors.Error.
	Code errors.Code `json:"code"`
	// Kind is the error kind from errors.Error.
	Kind errors.Kind `json:"kind"`
	// Err is the error from errors.Error.
	Err string `json:"err"`
	// Message is the message from errors.Error.
	Message string `json:"message"`
	// Details are error details from errors.Error.
	Details errors.Details `json:"details"`
}

// errorResponseFromError creates the errorResponse for the given error. For
// errors the requester is not to blame for, only the error code and kind are
// disclosed as the remaining fields may hold internal details.
func errorResponseFromError(err error) errorResponse {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return errorResponse{
			Code:    e.Code,
			Kind:    e.Kind,
			Message: "internal server error",
		}
	}
	return errorResponse{
		Code:    e.Code,
		Kind:    e.Kind,
		Err:     e.Error(),
		Message: e.Message,
		Details: e.Details,
	}
}

// userResponse is the public representation of a store.User.
type userResponse struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Color     nulls.String `json:"color"`
	CreatedAt time.Time    `json:"created_at"`
}

// userResponseFromStore creates the userResponse for the given store.User.
func userResponseFromStore(user store.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Color:     user.Color,
		CreatedAt: user.CreatedAt,
	}
}

// usersResponseFromStore creates the userResponse list for the given
// store.User list.
func usersResponseFromStore(users []store.User) []userResponse {
	response := make([]userResponse, 0, len(users))
	for _, user := range users {
		response = append(response, userResponseFromStore(user))
	}
	return response
}

// createUserRequest is the body for creating a user.
type createUserRequest struct {
	// Name is the human-readable display name.
	Name string `json:"name"`
	// Color is an optional hex color used by dashboards.
	Color nulls.String `json:"color"`
}

// supplementalEventPayload is the public representation of a
// store.SupplementalEvent. The source order of the list it appears in is
// preserved.
type supplementalEventPayload struct {
	Type      store.SupplementalEventType `json:"type"`
	StartTime time.Time                   `json:"start_time"`
	EndTime   time.Time                   `json:"end_time"`
}

// supplementalEventsPayloadFromStore creates the supplementalEventPayload
// list for the given store.SupplementalEvent list.
func supplementalEventsPayloadFromStore(supplementalEvents []store.SupplementalEvent) []supplementalEventPayload {
	payload := make([]supplementalEventPayload, 0, len(supplementalEvents))
	for _, supplementalEvent := range supplementalEvents {
		payload = append(payload, supplementalEventPayload{
			Type:      supplementalEvent.Type,
			StartTime: supplementalEvent.StartTime,
			EndTime:   supplementalEvent.EndTime,
		})
	}
	return payload
}

// supplementalEventsPayloadToStore creates the store.SupplementalEvent list
// for the given supplementalEventPayload list with ordinals from list order.
func supplementalEventsPayloadToStore(payload []supplementalEventPayload) []store.SupplementalEvent {
	supplementalEvents := make([]store.SupplementalEvent, 0, len(payload))
	for i, supplementalEvent := range payload {
		supplementalEvents = append(supplementalEvents, store.SupplementalEvent{
			Type:      supplementalEvent.Type,
			StartTime: supplementalEvent.StartTime,
			EndTime:   supplementalEvent.EndTime,
			Ordinal:   i,
		})
	}
	return supplementalEvents
}

// eventResponse is the public representation of a store.Event.
type eventResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	Calendar           string                     `json:"calendar"`
	Title              string                     `json:"title"`
	Description        nulls.String               `json:"description"`
	Location           nulls.String               `json:"location"`
	StartTime          time.Time                  `json:"start_time"`
	EndTime            time.Time                  `json:"end_time"`
	AllDay             bool                       `json:"all_day"`
	AssignedTo         uuid.NullUUID              `json:"assigned_to"`
	Version            int                        `json:"version"`
	SupplementalEvents []supplementalEventPayload `json:"supplemental_events"`
}

// eventResponseFromStore creates the eventResponse for the given store.Event.
func eventResponseFromStore(event store.Event) eventResponse {
	return eventResponse{
		ID:                 event.ID,
		Calendar:           event.Calendar,
		Title:              event.Title,
		Description:        event.Description,
		Location:           event.Location,
		StartTime:          event.StartTime,
		EndTime:            event.EndTime,
		AllDay:             event.AllDay,
		AssignedTo:         event.AssignedTo,
		Version:            event.Version,
		SupplementalEvents: supplementalEventsPayloadFromStore(event.SupplementalEvents),
	}
}

// eventsResponseFromStore creates the eventResponse list for the given
// store.Event list.
func eventsResponseFromStore(events []store.Event) []eventResponse {
	response := make([]eventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, eventResponseFromStore(event))
	}
	return response
}

// eventWriteRequest is the body for creating an event as well as for updating
// its details. The contained supplemental events replace any existing ones.
// Assignees are not touched here but only via assignment requests.
type eventWriteRequest struct {
	// Calendar is the name of the calendar the event belongs to.
	Calendar string `json:"calendar"`
	// Title is the human-readable title.
	Title string `json:"title"`
	// Description is an optional free-text description.
	Description nulls.String `json:"description"`
	// Location is an optional free-text location.
	Location nulls.String `json:"location"`
	// StartTime is the scheduled begin.
	StartTime time.Time `json:"start_time"`
	// EndTime is the scheduled end. Must not be before StartTime.
	EndTime time.Time `json:"end_time"`
	// AllDay describes whether the event covers whole days.
	AllDay bool `json:"all_day"`
	// SupplementalEvents are the supplemental events in source order.
	SupplementalEvents []supplementalEventPayload `json:"supplemental_events"`
}

// storeEventFromWriteRequest creates the store.Event for the given
// eventWriteRequest. Id, version and assignee remain unset as the store is in
// charge of them.
func storeEventFromWriteRequest(request eventWriteRequest) store.Event {
	return store.Event{
		Calendar:           request.Calendar,
		Title:              request.Title,
		Description:        request.Description,
		Location:           request.Location,
		StartTime:          request.StartTime,
		EndTime:            request.EndTime,
		AllDay:             request.AllDay,
		SupplementalEvents: supplementalEventsPayloadToStore(request.SupplementalEvents),
	}
}

// assignmentRequest is the body for starting an event assignment. A null
// target user clears the assignment.
type assignmentRequest struct {
	// TargetUserID is the id of the user to assign the event to or null for
	// clearing the assignment.
	TargetUserID uuid.NullUUID `json:"target_user_id"`
	// ExpectedVersion is the event version the requester last saw.
	ExpectedVersion int `json:"expected_version"`
}

// confirmationRequiredResponse is the response for an assignment that awaits
// conflict confirmation before being committed.
type confirmationRequiredResponse struct {
	// ConfirmationTicket identifies the parked assignment for confirming or
	// declining it.
	ConfirmationTicket uuid.UUID `json:"confirmation_ticket"`
	// TicketExpiresAt is the time the ticket becomes unusable.
	TicketExpiresAt time.Time `json:"ticket_expires_at"`
	// Conflicts are the events the assignment would collide with.
	Conflicts []eventResponse `json:"conflicts"`
}

// conflictCheckResponse is the response for a conflict check of a prospective
// assignment.
type conflictCheckResponse struct {
	// HasConflicts describes whether the assignment would create conflicts.
	HasConflicts bool `json:"has_conflicts"`
	// Conflicts are the events the assignment would collide with.
	Conflicts []eventResponse `json:"conflicts"`
}

// conflictsResponse is the response for a conflict report over a time range.
type conflictsResponse struct {
	// Events are all events in the range with effective intervals considered.
	Events []eventResponse `json:"events"`
	// Conflicts maps event ids to the ids of events they conflict with.
	Conflicts scheduling.ConflictMap `json:"conflicts"`
}

// resolveConflictRequest is the body for resolving a conflict between two
// events.
type resolveConflictRequest struct {
	// EventAID is the id of the first event of the pair.
	EventAID uuid.UUID `json:"event_a_id"`
	// EventBID is the id of the second event of the pair.
	EventBID uuid.UUID `json:"event_b_id"`
	// Reason is why the conflict is considered resolved.
	Reason store.ResolutionReason `json:"reason"`
	// AssignedUserID is the id of the user both events are assigned to.
	AssignedUserID uuid.UUID `json:"assigned_user_id"`
}

// resolutionResponse is the public representation of a
// store.ConflictResolution.
type resolutionResponse struct {
	ID             uuid.UUID              `json:"id"`
	EventAID       uuid.UUID              `json:"event_a_id"`
	EventBID       uuid.UUID              `json:"event_b_id"`
	Reason         store.ResolutionReason `json:"reason"`
	AssignedUserID uuid.UUID              `json:"assigned_user_id"`
	ResolvedAt     time.Time              `json:"resolved_at"`
}

// resolutionsResponseFromStore creates the resolutionResponse list for the
// given store.ConflictResolution list.
func resolutionsResponseFromStore(resolutions []store.ConflictResolution) []resolutionResponse {
	response := make([]resolutionResponse, 0, len(resolutions))
	for _, resolution := range resolutions {
		response = append(response, resolutionResponse{
			ID:             resolution.ID,
			EventAID:       resolution.EventAID,
			EventBID:       resolution.EventBID,
			Reason:         resolution.Reason,
			AssignedUserID: resolution.AssignedUserID,
			ResolvedAt:     resolution.ResolvedAt,
		})
	}
	return response
}
