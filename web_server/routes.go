package web_server

import (
	"context"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/assignsvc"
	"github.com/kinhub/kinhub-server/conflictsvc"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/store"
	"github.com/kinhub/kinhub-server/ws"
	"net/http"
	"time"
)

// Store are the store operations the web server uses.
type Store interface {
	// Users retrieves all known users.
	Users(ctx context.Context) ([]store.User, error)
	// CreateUser creates the given store.User and returns it with its assigned
	// id.
	CreateUser(ctx context.Context, create store.User) (store.User, error)
	// Events retrieves all events matching the given store.EventFilter.
	Events(ctx context.Context, filter store.EventFilter) ([]store.Event, error)
	// EventByID retrieves the store.Event with the given id.
	EventByID(ctx context.Context, eventID uuid.UUID) (store.Event, error)
	// CreateEvent creates the given store.Event and returns it with its assigned
	// id.
	CreateEvent(ctx context.Context, create store.Event) (store.Event, error)
	// UpdateEventDetails updates the details of the event with the id from the
	// given store.Event.
	UpdateEventDetails(ctx context.Context, update store.Event) error
	// DeleteEvent deletes the event with the given id.
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error
	// ReplaceSupplementalEvents replaces all supplemental events of the event
	// with the given id.
	ReplaceSupplementalEvents(ctx context.Context, eventID uuid.UUID,
		replaceWith []store.SupplementalEvent) ([]store.SupplementalEvent, error)
	// ConflictResolutions retrieves all applied conflict resolutions.
	ConflictResolutions(ctx context.Context) ([]store.ConflictResolution, error)
}

// Conflicts are the conflict operations the web server uses.
type Conflicts interface {
	// ConflictsInRange reports conflicts between events in the given range.
	ConflictsInRange(ctx context.Context, from time.Time, to time.Time) (conflictsvc.ConflictReport, error)
	// CheckAssignment checks which conflicts assigning the event with the given
	// id to the candidate user would create.
	CheckAssignment(ctx context.Context, eventID uuid.UUID,
		candidateUserID uuid.UUID) (conflictsvc.AssignmentCheck, error)
	// Resolve resolves the conflict described by the given
	// conflictsvc.ResolutionRequest.
	Resolve(ctx context.Context, request conflictsvc.ResolutionRequest) error
}

// Assignments are the assignment operations the web server uses.
type Assignments interface {
	// Begin starts handling the given assignsvc.AssignmentRequest.
	Begin(ctx context.Context, request assignsvc.AssignmentRequest) (assignsvc.Outcome, error)
	// Confirm commits the parked assignment with the given ticket id.
	Confirm(ctx context.Context, ticketID uuid.UUID) (assignsvc.Outcome, error)
	// Decline discards the parked assignment with the given ticket id.
	Decline(ctx context.Context, ticketID uuid.UUID) error
}

// Dependencies bundles everything the routes from WebServer.PopulateRoutes
// need.
type Dependencies struct {
	// Portal for announcing changed events.
	Portal portal.Portal
	// Store for retrieving and manipulating users and events.
	Store Store
	// Conflicts for conflict reports, checks and resolutions.
	Conflicts Conflicts
	// Assignments for coordinated event assignment.
	Assignments Assignments
	// Hub the websocket endpoint connects clients to.
	Hub *ws.Hub
}

// PopulateRoutes populates the WebServer with the routes, using the given
// Dependencies.
func (server *WebServer) PopulateRoutes(deps Dependencies) {
	server.deps = deps
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(server.logger.Named("ws"), deps.Hub))
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/users", server.handleGetUsers).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users", server.handleCreateUser).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events", server.handleGetEvents).Methods(http.MethodGet)
	apiRouter.HandleFunc("/events", server.handleCreateEvent).Methods(http.MethodPost)
	apiRouter.HandleFunc("/events/{eventID}", server.handleGetEventByID).Methods(http.MethodGet)
	apiRouter.HandleFunc("/events/{eventID}", server.handleUpdateEvent).Methods(http.MethodPut)
	apiRouter.HandleFunc("/events/{eventID}", server.handleDeleteEvent).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/events/{eventID}/conflict-check", server.handleCheckAssignment).Methods(http.MethodGet)
	apiRouter.HandleFunc("/events/{eventID}/assignment", server.handleAssignEvent).Methods(http.MethodPost)
	apiRouter.HandleFunc("/assignments/{ticketID}/confirm", server.handleConfirmAssignment).Methods(http.MethodPost)
	apiRouter.HandleFunc("/assignments/{ticketID}/decline", server.handleDeclineAssignment).Methods(http.MethodPost)
	apiRouter.HandleFunc("/conflicts", server.handleGetConflicts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/conflicts/resolution", server.handleResolveConflict).Methods(http.MethodPost)
	apiRouter.HandleFunc("/conflicts/resolutions", server.handleGetResolutions).Methods(http.MethodGet)
}
