package conflictsvc

import (
	"context"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/scheduling"
	"github.com/kinhub/kinhub-server/store"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Topics.
const (
	// topicConflictReportRequested is where display boards request a conflict
	// report to topicConflictReport.
	topicConflictReportRequested portal.Topic = "kinhub/calendar/conflicts/report-request"
	// topicConflictReport is where conflict reports are published.
	topicConflictReport portal.Topic = "kinhub/calendar/conflicts/report"
	// topicConflictResolved is where applied conflict resolutions are announced.
	topicConflictResolved portal.Topic = "kinhub/calendar/conflicts/resolved"
	// topicEventsChanged is where changed event ids are announced so that
	// consumers refetch them.
	topicEventsChanged portal.Topic = "kinhub/calendar/events/changed"
)

// reportWindow is the time range covered by published conflict reports. It
// matches the planning horizon of the display boards.
const reportWindow = 7 * 24 * time.Hour

// Store are the persistence dependencies needed for New.
type Store interface {
	// Events retrieves all events matching the given store.EventFilter, ordered
	// by their start time, with supplemental events attached in their original
	// order.
	Events(ctx context.Context, filter store.EventFilter) ([]store.Event, error)
	// EventByID retrieves the store.Event with the given id including its
	// supplemental events.
	EventByID(ctx context.Context, eventID uuid.UUID) (store.Event, error)
	// ApplyConflictResolution resolves the conflict between the event pair from
	// the given store.ConflictResolution. The first return value describes
	// whether the resolution was applied. If the same pair was already resolved
	// before, nothing is changed and false is returned without error.
	ApplyConflictResolution(ctx context.Context, apply store.ConflictResolution) (bool, error)
}

// ConflictService detects scheduling conflicts in the stored events and
// applies user-chosen conflict resolutions.
type ConflictService struct {
	logger *zap.Logger
	// portal for announcing resolutions and serving report requests.
	portal portal.Portal
	// store with all persistence dependencies.
	store Store
	// detector for finding conflicts between events.
	detector *scheduling.Detector
}

// New creates a new ConflictService. Run it with ConflictService.Run for
// serving conflict report requests over the portal.
func New(logger *zap.Logger, portal portal.Portal, store Store, detector *scheduling.Detector) *ConflictService {
	return &ConflictService{
		logger:   logger,
		portal:   portal,
		store:    store,
		detector: detector,
	}
}

// Run the service until the given context.Context is done.
func (s *ConflictService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	// Serve conflict report requests.
	reportRequestNewsletter := portal.Subscribe[event.EmptyEvent](ctx, s.portal, topicConflictReportRequested)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range reportRequestNewsletter.Receive {
			s.handleConflictReportRequested(ctx)
		}
	}()
	wg.Wait()
	return nil
}

// ConflictReport is the result of ConflictsInRange.
type ConflictReport struct {
	// Events are the events in the requested range, ordered by their start
	// time.
	Events []store.Event
	// Conflicts are the conflicts between the events.
	Conflicts scheduling.ConflictMap
}

// ConflictsInRange loads all events intersecting the given time range and
// detects the conflicts between them. The report is always computed from a
// fresh event collection.
func (s *ConflictService) ConflictsInRange(ctx context.Context, from time.Time, to time.Time) (ConflictReport, error) {
	events, err := s.store.Events(ctx, store.EventFilter{
		From: nulls.NewTime(from),
		To:   nulls.NewTime(to),
	})
	if err != nil {
		return ConflictReport{}, errors.Wrap(err, "events in range", errors.Details{"from": from, "to": to})
	}
	return ConflictReport{
		Events:    events,
		Conflicts: s.detector.Conflicts(events),
	}, nil
}

// AssignmentCheck is the result of CheckAssignment.
type AssignmentCheck struct {
	// HasConflicts describes whether assigning would create conflicts.
	HasConflicts bool
	// Conflicts are the events the checked event would conflict with.
	Conflicts []store.Event
}

// CheckAssignment checks which conflicts assigning the event with the given
// id to the given candidate user would create. The check runs the event
// against all events of the candidate. The interval of the checked event is
// resolved from its current state, so travel margins of an event that still
// awaits assignment count against the schedule of the candidate.
func (s *ConflictService) CheckAssignment(ctx context.Context, eventID uuid.UUID,
	candidateUserID uuid.UUID) (AssignmentCheck, error) {
	e, err := s.store.EventByID(ctx, eventID)
	if err != nil {
		return AssignmentCheck{}, errors.Wrap(err, "event by id", errors.Details{"event": eventID})
	}
	candidateEvents, err := s.store.Events(ctx, store.EventFilter{
		AssignedTo: uuid.NullUUID{UUID: candidateUserID, Valid: true},
	})
	if err != nil {
		return AssignmentCheck{}, errors.Wrap(err, "events of candidate", errors.Details{"candidate": candidateUserID})
	}
	conflictingEvents := s.detector.ConflictingWith(e, candidateEvents)
	return AssignmentCheck{
		HasConflicts: len(conflictingEvents) > 0,
		Conflicts:    conflictingEvents,
	}, nil
}

// ResolutionRequest describes the user-chosen resolution of a conflicting
// event pair.
type ResolutionRequest struct {
	// EventAID is the id of the first event of the pair.
	EventAID uuid.UUID
	// EventBID is the id of the second event of the pair.
	EventBID uuid.UUID
	// Reason is why the conflict can be considered resolved.
	Reason store.ResolutionReason
	// AssignedUserID is the id of the user both events are assigned to.
	AssignedUserID uuid.UUID
}

// Resolve applies the given ResolutionRequest. The store drops the travel and
// buffer supplemental events of the pair and records the resolution, so the
// pair no longer overlaps in the next detector pass. Callers must refetch the
// event collection afterwards, because supplemental event changes are not
// reflected in cached copies. Resolving an already resolved pair succeeds
// without changing anything.
func (s *ConflictService) Resolve(ctx context.Context, request ResolutionRequest) error {
	err := validateResolutionRequest(request)
	if err != nil {
		return errors.Wrap(err, "validate resolution request", nil)
	}
	// Assure both events are assigned to the user the resolution is for.
	eventA, err := s.store.EventByID(ctx, request.EventAID)
	if err != nil {
		return errors.Wrap(err, "event a by id", errors.Details{"event": request.EventAID})
	}
	eventB, err := s.store.EventByID(ctx, request.EventBID)
	if err != nil {
		return errors.Wrap(err, "event b by id", errors.Details{"event": request.EventBID})
	}
	for _, e := range []store.Event{eventA, eventB} {
		if !e.AssignedTo.Valid || e.AssignedTo.UUID != request.AssignedUserID {
			return errors.NewBadRequestError("event not assigned to user", errors.KindInvalidResolutionRequest,
				errors.Details{
					"event":         e.ID,
					"assigned_to":   e.AssignedTo,
					"expected_user": request.AssignedUserID,
				})
		}
	}
	applied, err := s.store.ApplyConflictResolution(ctx, store.ConflictResolution{
		EventAID:       request.EventAID,
		EventBID:       request.EventBID,
		Reason:         request.Reason,
		AssignedUserID: request.AssignedUserID,
	})
	if err != nil {
		return errors.Wrap(err, "apply conflict resolution", nil)
	}
	if !applied {
		s.logger.Debug("conflict resolution already applied",
			zap.Any("event_a", request.EventAID), zap.Any("event_b", request.EventBID))
		return nil
	}
	// Notify consumers so that they refetch.
	s.portal.Publish(ctx, topicConflictResolved, event.ConflictResolvedEvent{
		EventAID:       request.EventAID,
		EventBID:       request.EventBID,
		Reason:         string(request.Reason),
		AssignedUserID: request.AssignedUserID,
	})
	s.portal.Publish(ctx, topicEventsChanged, event.EventsChangedEvent{
		EventIDs: []uuid.UUID{request.EventAID, request.EventBID},
	})
	return nil
}

// validateResolutionRequest checks the given ResolutionRequest for being
// complete and consistent.
func validateResolutionRequest(request ResolutionRequest) error {
	if request.EventAID == uuid.Nil || request.EventBID == uuid.Nil {
		return errors.NewBadRequestError("missing event id", errors.KindMissingID, nil)
	}
	if request.EventAID == request.EventBID {
		return errors.NewBadRequestError("event pair must consist of different events",
			errors.KindInvalidResolutionRequest, nil)
	}
	switch request.Reason {
	case store.ResolutionReasonSameLocation, store.ResolutionReasonOther:
	default:
		return errors.NewBadRequestError("unknown resolution reason", errors.KindInvalidResolutionRequest,
			errors.Details{"was": request.Reason})
	}
	if request.AssignedUserID == uuid.Nil {
		return errors.NewBadRequestError("missing assigned user id", errors.KindMissingID, nil)
	}
	return nil
}

// handleConflictReportRequested handles topicConflictReportRequested by
// publishing a fresh conflict report for the report window to
// topicConflictReport.
func (s *ConflictService) handleConflictReportRequested(ctx context.Context) {
	now := time.Now()
	report, err := s.ConflictsInRange(ctx, now, now.Add(reportWindow))
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "conflicts in range for report", nil))
		return
	}
	s.portal.Publish(ctx, topicConflictReport, event.ConflictReportEvent{
		GeneratedAt: now,
		WindowStart: now,
		WindowEnd:   now.Add(reportWindow),
		Conflicts:   conflictPairs(report),
	})
}

// conflictPairs extracts each conflicting pair from the given ConflictReport
// once, ordered by the start times of the involved events.
func conflictPairs(report ConflictReport) []event.EventConflict {
	eventIndexByID := make(map[uuid.UUID]int, len(report.Events))
	for i, e := range report.Events {
		eventIndexByID[e.ID] = i
	}
	pairs := make([]event.EventConflict, 0, report.Conflicts.Entries())
	for i, e := range report.Events {
		for _, conflictingID := range report.Conflicts[e.ID] {
			if eventIndexByID[conflictingID] < i {
				// Already covered from the other side.
				continue
			}
			conflictingEvent := report.Events[eventIndexByID[conflictingID]]
			pairs = append(pairs, event.EventConflict{
				EventAID:    e.ID,
				EventATitle: e.Title,
				EventBID:    conflictingEvent.ID,
				EventBTitle: conflictingEvent.Title,
				AssignedTo:  e.AssignedTo.UUID,
			})
		}
	}
	return pairs
}
