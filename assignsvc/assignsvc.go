package assignsvc

import (
	"context"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/conflictsvc"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/store"
	"go.uber.org/zap"
	"sync"
	"time"
)

const (
	// topicAssignmentApplied is used for notifying about assignments that were
	// committed to the store.
	topicAssignmentApplied portal.Topic = "kinhub/calendar/assignments/applied"
	// topicEventsChanged is used for notifying about events that were changed in
	// the store.
	topicEventsChanged portal.Topic = "kinhub/calendar/events/changed"
)

const (
	// defaultTicketTTL is the duration a confirmation ticket stays valid after
	// Begin returned it.
	defaultTicketTTL = 5 * time.Minute
	// ticketSweepInterval is the interval in which expired confirmation tickets
	// are dropped in Run.
	ticketSweepInterval = time.Minute
)

// attemptState is the state of the assignment attempt for a single event.
type attemptState int

const (
	// attemptStateIdle is used when no assignment attempt is running for the
	// event. Events in this state are not tracked, so map lookups yield it as
	// zero value.
	attemptStateIdle attemptState = iota
	// attemptStateCheckingConflicts is used while the conflict check for the
	// requested target user is running.
	attemptStateCheckingConflicts
	// attemptStateAwaitingConfirmation is used while found conflicts wait for the
	// caller to confirm or decline via the confirmation ticket.
	attemptStateAwaitingConfirmation
	// attemptStateCommitting is used while the assignment is written to the
	// store.
	attemptStateCommitting
)

// AssignmentRequest describes the desired assignment of an event to a user.
type AssignmentRequest struct {
	// EventID identifies the event to assign.
	EventID uuid.UUID
	// TargetUserID is the user to assign the event to. Invalid uuid.NullUUID
	// clears the assignment.
	TargetUserID uuid.NullUUID
	// ExpectedVersion is the event version the caller last read. The assignment
	// is only committed while the stored version still equals it.
	ExpectedVersion int
}

// Outcome is the result of AssignmentService.Begin or
// AssignmentService.Confirm.
type Outcome struct {
	// Committed describes whether the assignment was written to the store. If
	// false, the assignment waits for confirmation via ConfirmationTicket.
	Committed bool
	// UpdatedEvent is the event after the commit. Only set if Committed.
	UpdatedEvent store.Event
	// ConfirmationTicket references the pending assignment for
	// AssignmentService.Confirm and AssignmentService.Decline. Only set if not
	// Committed.
	ConfirmationTicket uuid.UUID
	// TicketExpiresAt is the point in time the ConfirmationTicket expires.
	TicketExpiresAt time.Time
	// Conflicts are the events the requested assignment would conflict with.
	// Only set if not Committed.
	Conflicts []store.Event
}

// confirmationTicket is a pending assignment with found conflicts that waits
// for the caller to confirm or decline.
type confirmationTicket struct {
	// id identifies the ticket.
	id uuid.UUID
	// request is the original AssignmentRequest. Confirm commits it unchanged,
	// including the expected version from back then.
	request AssignmentRequest
	// conflicts are the events the assignment would conflict with.
	conflicts []store.Event
	// expiresAt is the point in time the ticket expires. Expired tickets behave
	// like unknown ones.
	expiresAt time.Time
}

// Store are the store operations used by AssignmentService.
type Store interface {
	// AssignEvent sets or clears the assignee of the event from the given
	// store.Assignment using optimistic locking. The stored version must equal
	// the expected one from the store.Assignment. On success, the version is
	// bumped and the updated store.Event returned. On version mismatch, the
	// authoritative current store.Event is returned along with an
	// errors.ErrConcurrentModification error, so callers can explain the
	// discrepancy without another read.
	AssignEvent(ctx context.Context, assignment store.Assignment) (store.Event, error)
	// UserByID retrieves the store.User with the given id.
	UserByID(ctx context.Context, userID uuid.UUID) (store.User, error)
}

// ConflictChecker checks requested assignments for scheduling conflicts.
type ConflictChecker interface {
	// CheckAssignment checks which conflicts assigning the event with the given
	// id to the candidate user would create.
	CheckAssignment(ctx context.Context, eventID uuid.UUID, candidateUserID uuid.UUID) (conflictsvc.AssignmentCheck, error)
}

// AssignmentService coordinates assigning events to users. Attempts run
// single-flight per event: while one is running, further ones for the same
// event are rejected. Assignments with a target user are checked for
// conflicts first and only committed right away if none are found. Otherwise,
// the caller has to confirm or decline using the returned confirmation
// ticket. Run the service with AssignmentService.Run for dropping expired
// tickets.
type AssignmentService struct {
	logger *zap.Logger
	portal portal.Portal
	store  Store
	// conflictChecker is used for checking assignments with a target user before
	// commit.
	conflictChecker ConflictChecker
	// ticketTTL is the duration a confirmation ticket stays valid.
	ticketTTL time.Duration
	// m locks attemptStateByEvent and ticketsByID.
	m sync.Mutex
	// attemptStateByEvent holds the attemptState for every event with a running
	// assignment attempt.
	attemptStateByEvent map[uuid.UUID]attemptState
	// ticketsByID holds all pending confirmationTicket by their id.
	ticketsByID map[uuid.UUID]*confirmationTicket
}

// New creates a new AssignmentService with the given store and
// ConflictChecker. Do not forget to call AssignmentService.Run.
func New(logger *zap.Logger, portal portal.Portal, store Store, conflictChecker ConflictChecker) *AssignmentService {
	return &AssignmentService{
		logger:              logger,
		portal:              portal,
		store:               store,
		conflictChecker:     conflictChecker,
		ticketTTL:           defaultTicketTTL,
		attemptStateByEvent: make(map[uuid.UUID]attemptState),
		ticketsByID:         make(map[uuid.UUID]*confirmationTicket),
	}
}

// Run drops expired confirmation tickets until the given context is done.
func (s *AssignmentService) Run(ctx context.Context) error {
	sweep := time.NewTicker(ticketSweepInterval)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweep.C:
			s.m.Lock()
			s.removeExpiredTickets(now)
			s.m.Unlock()
		}
	}
}

// removeExpiredTickets drops all confirmationTicket that are expired at the
// given point in time and releases their events for new attempts. Only call
// while holding the lock.
func (s *AssignmentService) removeExpiredTickets(now time.Time) {
	for id, ticket := range s.ticketsByID {
		if ticket.expiresAt.After(now) {
			continue
		}
		delete(s.ticketsByID, id)
		delete(s.attemptStateByEvent, ticket.request.EventID)
		s.logger.Debug("confirmation ticket expired",
			zap.Any("ticket", id),
			zap.Any("event", ticket.request.EventID))
	}
}

// release returns the event with the given id to attemptStateIdle.
func (s *AssignmentService) release(eventID uuid.UUID) {
	s.m.Lock()
	defer s.m.Unlock()
	delete(s.attemptStateByEvent, eventID)
}

// validateAssignmentRequest assures that the given AssignmentRequest holds all
// required fields.
func validateAssignmentRequest(request AssignmentRequest) error {
	if request.EventID == uuid.Nil {
		return errors.NewBadRequestError("missing event id", errors.KindMissingID, nil)
	}
	if request.ExpectedVersion < 1 {
		return errors.NewBadRequestError("expected version must be positive", errors.KindInvalidAssignmentRequest,
			errors.Details{"expected_version": request.ExpectedVersion})
	}
	return nil
}

// Begin starts an assignment attempt for the given AssignmentRequest. If a
// target user is set, the user must exist and the assignment is checked for
// conflicts first. Found conflicts are not committed. Instead, they are
// returned in the Outcome with a confirmation ticket for
// AssignmentService.Confirm or AssignmentService.Decline. Without a target
// user or without found conflicts, the assignment is committed right away. If
// the conflict check fails, the attempt is aborted and nothing committed.
func (s *AssignmentService) Begin(ctx context.Context, request AssignmentRequest) (Outcome, error) {
	err := validateAssignmentRequest(request)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "validate assignment request", nil)
	}
	// Claim the event. Expired tickets are dropped first so that they do not
	// block new attempts until the next sweep.
	s.m.Lock()
	s.removeExpiredTickets(time.Now())
	if s.attemptStateByEvent[request.EventID] != attemptStateIdle {
		s.m.Unlock()
		return Outcome{}, errors.NewBadRequestError("assignment for event already in progress",
			errors.KindAssignmentInProgress, errors.Details{"event": request.EventID})
	}
	// Clearing the assignee cannot create conflicts for anybody, so we skip the
	// conflict check when no target user is set.
	if !request.TargetUserID.Valid {
		s.attemptStateByEvent[request.EventID] = attemptStateCommitting
		s.m.Unlock()
		return s.commit(ctx, request)
	}
	s.attemptStateByEvent[request.EventID] = attemptStateCheckingConflicts
	s.m.Unlock()
	// Assure the target user exists so that commits do not trip the foreign
	// key.
	_, err = s.store.UserByID(ctx, request.TargetUserID.UUID)
	if err != nil {
		s.release(request.EventID)
		if e, ok := errors.Cast(err); ok && e.Code == errors.ErrNotFound {
			return Outcome{}, errors.Error{
				Code:    errors.ErrNotFound,
				Kind:    errors.KindUnknownUser,
				Err:     err,
				Message: "unknown target user",
				Details: errors.Details{"user": request.TargetUserID.UUID},
			}
		}
		return Outcome{}, errors.Wrap(err, "target user by id",
			errors.Details{"user": request.TargetUserID.UUID})
	}
	// Check for conflicts.
	check, err := s.conflictChecker.CheckAssignment(ctx, request.EventID, request.TargetUserID.UUID)
	if err != nil {
		s.release(request.EventID)
		return Outcome{}, errors.Error{
			Code:    errors.ErrCommunication,
			Kind:    errors.KindConflictCheckFailed,
			Err:     err,
			Message: "check assignment for conflicts",
			Details: errors.Details{"event": request.EventID},
		}
	}
	if !check.HasConflicts {
		s.setAttemptState(request.EventID, attemptStateCommitting)
		return s.commit(ctx, request)
	}
	// Conflicts found. Park the request behind a confirmation ticket.
	ticketID, err := uuid.NewRandom()
	if err != nil {
		s.release(request.EventID)
		return Outcome{}, errors.NewUUIDGenError(err)
	}
	ticket := &confirmationTicket{
		id:        ticketID,
		request:   request,
		conflicts: check.Conflicts,
		expiresAt: time.Now().Add(s.ticketTTL),
	}
	s.m.Lock()
	s.attemptStateByEvent[request.EventID] = attemptStateAwaitingConfirmation
	s.ticketsByID[ticket.id] = ticket
	s.m.Unlock()
	s.logger.Debug("assignment awaits confirmation",
		zap.Any("ticket", ticket.id),
		zap.Any("event", request.EventID),
		zap.Int("conflict_count", len(ticket.conflicts)))
	return Outcome{
		ConfirmationTicket: ticket.id,
		TicketExpiresAt:    ticket.expiresAt,
		Conflicts:          ticket.conflicts,
	}, nil
}

// setAttemptState sets the attemptState for the event with the given id.
func (s *AssignmentService) setAttemptState(eventID uuid.UUID, state attemptState) {
	s.m.Lock()
	defer s.m.Unlock()
	s.attemptStateByEvent[eventID] = state
}

// Confirm commits the pending assignment for the confirmation ticket with the
// given id. The assignment is committed with the original AssignmentRequest
// from AssignmentService.Begin, including its expected version, so a version
// change since then still surfaces as errors.ErrConcurrentModification.
// Unknown and expired tickets are rejected.
func (s *AssignmentService) Confirm(ctx context.Context, ticketID uuid.UUID) (Outcome, error) {
	ticket, err := s.takeTicket(ticketID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "take confirmation ticket", nil)
	}
	s.setAttemptState(ticket.request.EventID, attemptStateCommitting)
	return s.commit(ctx, ticket.request)
}

// Decline drops the pending assignment for the confirmation ticket with the
// given id without touching the store. Unknown and expired tickets are
// rejected.
func (s *AssignmentService) Decline(_ context.Context, ticketID uuid.UUID) error {
	ticket, err := s.takeTicket(ticketID)
	if err != nil {
		return errors.Wrap(err, "take confirmation ticket", nil)
	}
	s.release(ticket.request.EventID)
	s.logger.Debug("assignment declined",
		zap.Any("ticket", ticket.id),
		zap.Any("event", ticket.request.EventID))
	return nil
}

// takeTicket removes and returns the confirmationTicket with the given id.
// Expired tickets are treated like unknown ones.
func (s *AssignmentService) takeTicket(ticketID uuid.UUID) (*confirmationTicket, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.removeExpiredTickets(time.Now())
	ticket, ok := s.ticketsByID[ticketID]
	if !ok {
		return nil, errors.Error{
			Code:    errors.ErrNotFound,
			Kind:    errors.KindUnknownConfirmationTicket,
			Message: "unknown confirmation ticket",
			Details: errors.Details{"ticket": ticketID},
		}
	}
	delete(s.ticketsByID, ticketID)
	return ticket, nil
}

// commit writes the assignment from the given AssignmentRequest to the store
// and notifies via the portal. The event is released for new attempts in any
// case.
func (s *AssignmentService) commit(ctx context.Context, request AssignmentRequest) (Outcome, error) {
	defer s.release(request.EventID)
	updatedEvent, err := s.store.AssignEvent(ctx, store.Assignment{
		EventID:         request.EventID,
		AssignedTo:      request.TargetUserID,
		ExpectedVersion: request.ExpectedVersion,
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "assign event in store", nil)
	}
	// Notify.
	s.portal.Publish(ctx, topicAssignmentApplied, event.AssignmentAppliedEvent{
		EventID:    updatedEvent.ID,
		AssignedTo: updatedEvent.AssignedTo,
		Version:    updatedEvent.Version,
	})
	s.portal.Publish(ctx, topicEventsChanged, event.EventsChangedEvent{
		EventIDs: []uuid.UUID{updatedEvent.ID},
	})
	return Outcome{
		Committed:    true,
		UpdatedEvent: updatedEvent,
	}, nil
}
