package web_server

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kinhub/kinhub-server/assignsvc"
	"github.com/kinhub/kinhub-server/conflictsvc"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/store"
	"github.com/kinhub/kinhub-server/util"
	"io"
	"net/http"
	"time"
)

// topicEventsChanged is where changed event ids are published after create,
// update and delete operations.
const topicEventsChanged portal.Topic = "kinhub/calendar/events/changed"

// defaultConflictsRange is the range used for conflict reports when the to
// query parameter is not set.
const defaultConflictsRange = 7 * 24 * time.Hour

// httpStatusForError returns the HTTP status code matching the error code of
// the given error.
func httpStatusForError(err error) int {
	e, _ := errors.Cast(err)
	switch e.Code {
	case errors.ErrBadRequest, errors.ErrProtocolViolation:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrConcurrentModification:
		return http.StatusConflict
	case errors.ErrCommunication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes the given content as JSON with the given status code.
func (server *WebServer) respondJSON(w http.ResponseWriter, statusCode int, content interface{}) {
	raw, err := util.EncodeAsJSON(content)
	if err != nil {
		errors.Log(server.logger, errors.Wrap(err, "encode response", nil))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(raw)
	if err != nil {
		errors.Log(server.logger, errors.Wrap(err, "write response", nil))
	}
}

// respondError logs the given error and writes the matching errorResponse
// with the status code from httpStatusForError.
func (server *WebServer) respondError(w http.ResponseWriter, err error) {
	errors.Log(server.logger, err)
	server.respondJSON(w, httpStatusForError(err), errorResponseFromError(err))
}

// decodeBodyFromRequest parses the body of the given http.Request as JSON
// into the given target.
func decodeBodyFromRequest(r *http.Request, target interface{}) error {
	defer func() { _ = r.Body.Close() }()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDecodeJSON,
			Err:     err,
			Message: "read request body",
		}
	}
	return util.DecodeAsJSON(raw, target)
}

// parseUUIDVar parses the route variable with the given name as uuid.UUID.
func parseUUIDVar(r *http.Request, name string) (uuid.UUID, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return uuid.UUID{}, errors.NewBadRequestError("missing route variable", errors.KindMissingID,
			errors.Details{"var_name": name})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMalformedID,
			Err:     err,
			Message: "parse route variable as uuid",
			Details: errors.Details{"var_name": name, "was": raw},
		}
	}
	return id, nil
}

// parseTimeQueryParam parses the optional query parameter with the given name
// in time.RFC3339 format.
func parseTimeQueryParam(r *http.Request, name string) (nulls.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nulls.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nulls.Time{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMalformedQueryParameter,
			Err:     err,
			Message: "parse time query parameter",
			Details: errors.Details{"param_name": name, "was": raw},
		}
	}
	return nulls.NewTime(t), nil
}

// parseUUIDQueryParam parses the optional query parameter with the given name
// as uuid.UUID.
func parseUUIDQueryParam(r *http.Request, name string) (uuid.NullUUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.NullUUID{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindMalformedQueryParameter,
			Err:     err,
			Message: "parse uuid query parameter",
			Details: errors.Details{"param_name": name, "was": raw},
		}
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

// announceChangedEvents publishes an event.EventsChangedEvent for the given
// event ids so that connected clients refetch.
func (server *WebServer) announceChangedEvents(ctx context.Context, eventIDs ...uuid.UUID) {
	server.deps.Portal.Publish(ctx, topicEventsChanged, event.EventsChangedEvent{EventIDs: eventIDs})
}

// handleGetUsers lists all known users.
func (server *WebServer) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := server.deps.Store.Users(r.Context())
	if err != nil {
		server.respondError(w, errors.Wrap(err, "users from store", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, usersResponseFromStore(users))
}

// handleCreateUser creates a new user from the request body.
func (server *WebServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var request createUserRequest
	err := decodeBodyFromRequest(r, &request)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decode create user request", nil))
		return
	}
	if request.Name == "" {
		server.respondError(w, errors.NewBadRequestError("user name must not be empty",
			errors.KindInvalidUserDetails, nil))
		return
	}
	user, err := server.deps.Store.CreateUser(r.Context(), store.User{
		Name:  request.Name,
		Color: request.Color,
	})
	if err != nil {
		server.respondError(w, errors.Wrap(err, "create user in store", nil))
		return
	}
	server.respondJSON(w, http.StatusCreated, userResponseFromStore(user))
}

// handleGetEvents lists events matching the optional from, to, calendar and
// assignee query parameters.
func (server *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var filter store.EventFilter
	var err error
	filter.From, err = parseTimeQueryParam(r, "from")
	if err != nil {
		server.respondError(w, err)
		return
	}
	filter.To, err = parseTimeQueryParam(r, "to")
	if err != nil {
		server.respondError(w, err)
		return
	}
	if calendar := r.URL.Query().Get("calendar"); calendar != "" {
		filter.Calendar = nulls.NewString(calendar)
	}
	filter.AssignedTo, err = parseUUIDQueryParam(r, "assignee")
	if err != nil {
		server.respondError(w, err)
		return
	}
	events, err := server.deps.Store.Events(r.Context(), filter)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "events from store", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, eventsResponseFromStore(events))
}

// validateEventWriteRequest checks the given eventWriteRequest for empty or
// inconsistent details.
func validateEventWriteRequest(request eventWriteRequest) error {
	if request.Calendar == "" {
		return errors.NewBadRequestError("event calendar must not be empty",
			errors.KindInvalidEventDetails, nil)
	}
	if request.Title == "" {
		return errors.NewBadRequestError("event title must not be empty",
			errors.KindInvalidEventDetails, nil)
	}
	if request.EndTime.Before(request.StartTime) {
		return errors.NewBadRequestError("event must not end before it starts",
			errors.KindInvalidEventDetails, errors.Details{
				"start_time": request.StartTime,
				"end_time":   request.EndTime,
			})
	}
	for _, supplementalEvent := range request.SupplementalEvents {
		if supplementalEvent.EndTime.Before(supplementalEvent.StartTime) {
			return errors.NewBadRequestError("supplemental event must not end before it starts",
				errors.KindInvalidEventDetails, errors.Details{
					"supplemental_event_type": supplementalEvent.Type,
					"start_time":              supplementalEvent.StartTime,
					"end_time":                supplementalEvent.EndTime,
				})
		}
	}
	return nil
}

// handleCreateEvent creates a new event from the request body and announces
// the change.
func (server *WebServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var request eventWriteRequest
	err := decodeBodyFromRequest(r, &request)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decode create event request", nil))
		return
	}
	err = validateEventWriteRequest(request)
	if err != nil {
		server.respondError(w, err)
		return
	}
	created, err := server.deps.Store.CreateEvent(r.Context(), storeEventFromWriteRequest(request))
	if err != nil {
		server.respondError(w, errors.Wrap(err, "create event in store", nil))
		return
	}
	server.announceChangedEvents(r.Context(), created.ID)
	server.respondJSON(w, http.StatusCreated, eventResponseFromStore(created))
}

// handleGetEventByID retrieves the event with the id from the route.
func (server *WebServer) handleGetEventByID(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDVar(r, "eventID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	retrieved, err := server.deps.Store.EventByID(r.Context(), eventID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "event by id from store", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, eventResponseFromStore(retrieved))
}

// handleUpdateEvent updates details and supplemental events of the event with
// the id from the route and announces the change. The assignee is not
// touched, use the assignment route for that.
func (server *WebServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDVar(r, "eventID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	var request eventWriteRequest
	err = decodeBodyFromRequest(r, &request)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decode update event request", nil))
		return
	}
	err = validateEventWriteRequest(request)
	if err != nil {
		server.respondError(w, err)
		return
	}
	update := storeEventFromWriteRequest(request)
	update.ID = eventID
	err = server.deps.Store.UpdateEventDetails(r.Context(), update)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "update event details in store", nil))
		return
	}
	_, err = server.deps.Store.ReplaceSupplementalEvents(r.Context(), eventID, update.SupplementalEvents)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "replace supplemental events in store", nil))
		return
	}
	updated, err := server.deps.Store.EventByID(r.Context(), eventID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "updated event by id from store", nil))
		return
	}
	server.announceChangedEvents(r.Context(), eventID)
	server.respondJSON(w, http.StatusOK, eventResponseFromStore(updated))
}

// handleDeleteEvent deletes the event with the id from the route and
// announces the change.
func (server *WebServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDVar(r, "eventID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	err = server.deps.Store.DeleteEvent(r.Context(), eventID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "delete event in store", nil))
		return
	}
	server.announceChangedEvents(r.Context(), eventID)
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckAssignment checks which conflicts assigning the event from the
// route to the candidate user from the query would create.
func (server *WebServer) handleCheckAssignment(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDVar(r, "eventID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	candidate, err := parseUUIDQueryParam(r, "candidate")
	if err != nil {
		server.respondError(w, err)
		return
	}
	if !candidate.Valid {
		server.respondError(w, errors.NewBadRequestError("missing candidate query parameter",
			errors.KindMissingQueryParameter, errors.Details{"param_name": "candidate"}))
		return
	}
	check, err := server.deps.Conflicts.CheckAssignment(r.Context(), eventID, candidate.UUID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "check assignment", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, conflictCheckResponse{
		HasConflicts: check.HasConflicts,
		Conflicts:    eventsResponseFromStore(check.Conflicts),
	})
}

// handleAssignEvent starts an assignment of the event from the route to the
// target user from the body. If the assignment commits right away, the
// updated event is returned. If conflicts require confirmation first, a
// confirmation ticket is returned with http.StatusAccepted instead.
func (server *WebServer) handleAssignEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseUUIDVar(r, "eventID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	var request assignmentRequest
	err = decodeBodyFromRequest(r, &request)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decode assignment request", nil))
		return
	}
	outcome, err := server.deps.Assignments.Begin(r.Context(), assignsvc.AssignmentRequest{
		EventID:         eventID,
		TargetUserID:    request.TargetUserID,
		ExpectedVersion: request.ExpectedVersion,
	})
	if err != nil {
		server.respondError(w, errors.Wrap(err, "begin assignment", nil))
		return
	}
	if !outcome.Committed {
		server.respondJSON(w, http.StatusAccepted, confirmationRequiredResponse{
			ConfirmationTicket: outcome.ConfirmationTicket,
			TicketExpiresAt:    outcome.TicketExpiresAt,
			Conflicts:          eventsResponseFromStore(outcome.Conflicts),
		})
		return
	}
	server.respondJSON(w, http.StatusOK, eventResponseFromStore(outcome.UpdatedEvent))
}

// handleConfirmAssignment commits the parked assignment with the ticket from
// the route and returns the updated event.
func (server *WebServer) handleConfirmAssignment(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseUUIDVar(r, "ticketID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	outcome, err := server.deps.Assignments.Confirm(r.Context(), ticketID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "confirm assignment", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, eventResponseFromStore(outcome.UpdatedEvent))
}

// handleDeclineAssignment discards the parked assignment with the ticket from
// the route.
func (server *WebServer) handleDeclineAssignment(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseUUIDVar(r, "ticketID")
	if err != nil {
		server.respondError(w, err)
		return
	}
	err = server.deps.Assignments.Decline(r.Context(), ticketID)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decline assignment", nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetConflicts reports conflicts in the range given by the from and to
// query parameters. From defaults to the current time and to defaults to
// defaultConflictsRange after from.
func (server *WebServer) handleGetConflicts(w http.ResponseWriter, r *http.Request) {
	fromParam, err := parseTimeQueryParam(r, "from")
	if err != nil {
		server.respondError(w, err)
		return
	}
	toParam, err := parseTimeQueryParam(r, "to")
	if err != nil {
		server.respondError(w, err)
		return
	}
	from := time.Now()
	if fromParam.Valid {
		from = fromParam.Time
	}
	to := from.Add(defaultConflictsRange)
	if toParam.Valid {
		to = toParam.Time
	}
	report, err := server.deps.Conflicts.ConflictsInRange(r.Context(), from, to)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "conflicts in range", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, conflictsResponse{
		Events:    eventsResponseFromStore(report.Events),
		Conflicts: report.Conflicts,
	})
}

// handleResolveConflict resolves the conflict between the event pair from the
// request body. Resolving an already resolved conflict succeeds without
// further effect.
func (server *WebServer) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var request resolveConflictRequest
	err := decodeBodyFromRequest(r, &request)
	if err != nil {
		server.respondError(w, errors.Wrap(err, "decode resolve conflict request", nil))
		return
	}
	err = server.deps.Conflicts.Resolve(r.Context(), conflictsvc.ResolutionRequest{
		EventAID:       request.EventAID,
		EventBID:       request.EventBID,
		Reason:         request.Reason,
		AssignedUserID: request.AssignedUserID,
	})
	if err != nil {
		server.respondError(w, errors.Wrap(err, "resolve conflict", nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetResolutions lists all applied conflict resolutions.
func (server *WebServer) handleGetResolutions(w http.ResponseWriter, r *http.Request) {
	resolutions, err := server.deps.Store.ConflictResolutions(r.Context())
	if err != nil {
		server.respondError(w, errors.Wrap(err, "conflict resolutions from store", nil))
		return
	}
	server.respondJSON(w, http.StatusOK, resolutionsResponseFromStore(resolutions))
}
