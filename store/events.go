package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/kinhub/kinhub-server/errors"
	"time"
)

// SupplementalEventType is the purpose of a SupplementalEvent.
type SupplementalEventType string

const (
	// SupplementalEventTypeDeparture covers travel to the event location.
	SupplementalEventTypeDeparture SupplementalEventType = "departure"
	// SupplementalEventTypeBuffer covers generic preparation time before the
	// event.
	SupplementalEventTypeBuffer SupplementalEventType = "buffer"
	// SupplementalEventTypeReturn covers travel back home after the event.
	SupplementalEventTypeReturn SupplementalEventType = "return"
)

// Event is a single calendar occurrence.
type Event struct {
	// ID identifies the event.
	ID uuid.UUID
	// Calendar is the name of the calendar the event belongs to.
	Calendar string
	// Title is the human-readable title.
	Title string
	// Description is an optional free-text description.
	Description nulls.String
	// Location is an optional free-text location.
	Location nulls.String
	// StartTime is the scheduled begin.
	StartTime time.Time
	// EndTime is the scheduled end. Must not be before StartTime.
	EndTime time.Time
	// AllDay describes whether the event covers whole days. StartTime and
	// EndTime then hold date-only instants.
	AllDay bool
	// AssignedTo is the id of the user being responsible for the event, if any.
	AssignedTo uuid.NullUUID
	// Version is incremented with every mutation and starts at 1. It is used
	// for optimistic locking in AssignEvent.
	Version int
	// SupplementalEvents are the supplemental events in their original order.
	SupplementalEvents []SupplementalEvent
}

// SupplementalEvent is an auxiliary interval attached to an Event like travel
// or preparation time. Supplemental events are produced by external
// collaborators and treated as read-only inputs apart from
// Mall.ReplaceSupplementalEvents and Mall.ApplyConflictResolution.
type SupplementalEvent struct {
	// ID identifies the supplemental event.
	ID uuid.UUID
	// EventID is the id of the Event the supplemental event is attached to.
	EventID uuid.UUID
	// Type is the purpose of the covered interval.
	Type SupplementalEventType
	// StartTime is the begin of the covered interval.
	StartTime time.Time
	// EndTime is the end of the covered interval.
	EndTime time.Time
	// Ordinal preserves the original source order for deterministic
	// tie-breaks when multiple supplemental events share the same Type.
	Ordinal int
}

// EventFilter is used in Mall.Events for limiting results. Time bounds match
// all events whose raw interval intersects the given range.
type EventFilter struct {
	// From matches events ending at or after this time.
	From nulls.Time
	// To matches events starting at or before this time.
	To nulls.Time
	// Calendar matches events from the calendar with this name.
	Calendar nulls.String
	// AssignedTo matches events assigned to the user with this id.
	AssignedTo uuid.NullUUID
}

// Assignment sets or clears the assignee of an Event.
type Assignment struct {
	// EventID is the id of the event to assign.
	EventID uuid.UUID
	// AssignedTo is the user to assign the event to or empty for clearing the
	// assignment.
	AssignedTo uuid.NullUUID
	// ExpectedVersion is the version the caller last read for the event. The
	// assignment is rejected if the stored version differs.
	ExpectedVersion int
}

// Events retrieves all events matching the given EventFilter, ordered by
// their start time, with supplemental events attached in their original
// order.
func (m *Mall) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	// Build query.
	qb := m.dialect.From("events").
		Select(goqu.C("id"),
			goqu.C("calendar"),
			goqu.C("title"),
			goqu.C("description"),
			goqu.C("location"),
			goqu.C("start_time"),
			goqu.C("end_time"),
			goqu.C("all_day"),
			goqu.C("assigned_to"),
			goqu.C("version")).
		Order(goqu.C("start_time").Asc(), goqu.C("id").Asc())
	if filter.From.Valid {
		qb = qb.Where(goqu.C("end_time").Gte(filter.From.Time))
	}
	if filter.To.Valid {
		qb = qb.Where(goqu.C("start_time").Lte(filter.To.Time))
	}
	if filter.Calendar.Valid {
		qb = qb.Where(goqu.C("calendar").Eq(filter.Calendar.String))
	}
	if filter.AssignedTo.Valid {
		qb = qb.Where(goqu.C("assigned_to").Eq(filter.AssignedTo.UUID))
	}
	q, _, err := qb.ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query events", q)
	}
	defer rows.Close()
	// Scan.
	events := make([]Event, 0)
	eventIndexByID := make(map[uuid.UUID]int)
	for rows.Next() {
		var event Event
		err = rows.Scan(&event.ID,
			&event.Calendar,
			&event.Title,
			&event.Description,
			&event.Location,
			&event.StartTime,
			&event.EndTime,
			&event.AllDay,
			&event.AssignedTo,
			&event.Version)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		event.SupplementalEvents = make([]SupplementalEvent, 0)
		eventIndexByID[event.ID] = len(events)
		events = append(events, event)
	}
	rows.Close()
	if len(events) == 0 {
		return events, nil
	}
	// Attach supplemental events.
	eventIDs := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		eventIDs = append(eventIDs, event.ID)
	}
	supplementalEvents, err := m.supplementalEventsByEventIDs(ctx, eventIDs)
	if err != nil {
		return nil, errors.Wrap(err, "supplemental events by event ids", nil)
	}
	for _, supplementalEvent := range supplementalEvents {
		i, ok := eventIndexByID[supplementalEvent.EventID]
		if !ok {
			return nil, errors.NewInternalError("supplemental event for unknown event",
				errors.Details{"supplemental_event": supplementalEvent.ID, "event": supplementalEvent.EventID})
		}
		events[i].SupplementalEvents = append(events[i].SupplementalEvents, supplementalEvent)
	}
	return events, nil
}

// supplementalEventsByEventIDs retrieves all supplemental events for the
// events with the given ids, ordered by event id and ordinal.
func (m *Mall) supplementalEventsByEventIDs(ctx context.Context, eventIDs []uuid.UUID) ([]SupplementalEvent, error) {
	// Build query.
	q, _, err := m.dialect.From("supplemental_events").
		Select(goqu.C("id"),
			goqu.C("event_id"),
			goqu.C("type"),
			goqu.C("start_time"),
			goqu.C("end_time"),
			goqu.C("ordinal")).
		Where(goqu.C("event_id").In(eventIDs)).
		Order(goqu.C("event_id").Asc(), goqu.C("ordinal").Asc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query supplemental events", q)
	}
	defer rows.Close()
	// Scan.
	supplementalEvents := make([]SupplementalEvent, 0)
	for rows.Next() {
		var supplementalEvent SupplementalEvent
		err = rows.Scan(&supplementalEvent.ID,
			&supplementalEvent.EventID,
			&supplementalEvent.Type,
			&supplementalEvent.StartTime,
			&supplementalEvent.EndTime,
			&supplementalEvent.Ordinal)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		supplementalEvents = append(supplementalEvents, supplementalEvent)
	}
	return supplementalEvents, nil
}

// EventByID retrieves the Event with the given id including its supplemental
// events.
func (m *Mall) EventByID(ctx context.Context, eventID uuid.UUID) (Event, error) {
	// Build query.
	q, _, err := m.dialect.From("events").
		Select(goqu.C("id"),
			goqu.C("calendar"),
			goqu.C("title"),
			goqu.C("description"),
			goqu.C("location"),
			goqu.C("start_time"),
			goqu.C("end_time"),
			goqu.C("all_day"),
			goqu.C("assigned_to"),
			goqu.C("version")).
		Where(goqu.C("id").Eq(eventID)).ToSQL()
	if err != nil {
		return Event{}, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return Event{}, errors.NewExecQueryError(err, "query event", q)
	}
	defer rows.Close()
	// Scan.
	if !rows.Next() {
		return Event{}, errors.NewResourceNotFoundError("event not found", errors.Details{"event": eventID})
	}
	var event Event
	err = rows.Scan(&event.ID,
		&event.Calendar,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.StartTime,
		&event.EndTime,
		&event.AllDay,
		&event.AssignedTo,
		&event.Version)
	if err != nil {
		return Event{}, errors.NewScanDBRowError(err, "scan row", q)
	}
	rows.Close()
	// Attach supplemental events.
	supplementalEvents, err := m.supplementalEventsByEventIDs(ctx, []uuid.UUID{event.ID})
	if err != nil {
		return Event{}, errors.Wrap(err, "supplemental events by event ids", nil)
	}
	event.SupplementalEvents = supplementalEvents
	return event, nil
}

// CreateEvent creates the given Event along with its supplemental events and
// returns it with all generated fields set. The version always starts at 1.
func (m *Mall) CreateEvent(ctx context.Context, create Event) (Event, error) {
	eventID, err := uuid.NewRandom()
	if err != nil {
		return Event{}, errors.NewUUIDGenError(err)
	}
	create.ID = eventID
	create.Version = 1
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return Event{}, errors.NewDBTxBeginError(err)
	}
	// Build query.
	q, _, err := m.dialect.Insert("events").Rows(goqu.Record{
		"id":          create.ID,
		"calendar":    create.Calendar,
		"title":       create.Title,
		"description": create.Description,
		"location":    create.Location,
		"start_time":  create.StartTime,
		"end_time":    create.EndTime,
		"all_day":     create.AllDay,
		"assigned_to": create.AssignedTo,
		"version":     create.Version,
	}).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "create event query to sql")
		return Event{}, errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec create event query failed")
		return Event{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	if result.RowsAffected() != 1 {
		m.rollbackTx(ctx, tx, "event not created")
		return Event{}, errors.NewInternalError("event not created", errors.Details{"query": q})
	}
	// Create supplemental events.
	create.SupplementalEvents, err = m.insertSupplementalEventsTx(ctx, tx, create.ID, create.SupplementalEvents)
	if err != nil {
		m.rollbackTx(ctx, tx, "insert supplemental events failed")
		return Event{}, errors.Wrap(err, "insert supplemental events", nil)
	}
	// Commit.
	err = tx.Commit(ctx)
	if err != nil {
		return Event{}, errors.NewDBTxCommitError(err)
	}
	return create, nil
}

// UpdateEventDetails updates calendar, title, description, location, times
// and the all-day flag of the event with the id from the given Event. The
// assignee is not touched, use AssignEvent for that. The event version is
// bumped.
func (m *Mall) UpdateEventDetails(ctx context.Context, update Event) error {
	// Build query.
	q, _, err := m.dialect.Update("events").Set(goqu.Record{
		"calendar":    update.Calendar,
		"title":       update.Title,
		"description": update.Description,
		"location":    update.Location,
		"start_time":  update.StartTime,
		"end_time":    update.EndTime,
		"all_day":     update.AllDay,
		"version":     goqu.L("version + 1"),
	}).Where(goqu.C("id").Eq(update.ID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec update query", q)
	}
	// Assure found.
	if result.RowsAffected() != 1 {
		return errors.NewResourceNotFoundError("event not found", errors.Details{"event": update.ID})
	}
	return nil
}

// DeleteEvent deletes the event with the given id including its supplemental
// events.
func (m *Mall) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	// Build query.
	q, _, err := m.dialect.Delete("events").
		Where(goqu.C("id").Eq(eventID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec delete query", q)
	}
	// Assure found.
	if result.RowsAffected() != 1 {
		return errors.NewResourceNotFoundError("event not found", errors.Details{"event": eventID})
	}
	return nil
}

// ReplaceSupplementalEvents replaces all supplemental events of the event
// with the given id with the given ones and returns the created entries.
// Ordinals are assigned based on the given order. The event version is not
// touched.
func (m *Mall) ReplaceSupplementalEvents(ctx context.Context, eventID uuid.UUID,
	replaceWith []SupplementalEvent) ([]SupplementalEvent, error) {
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, errors.NewDBTxBeginError(err)
	}
	// Build event existence query.
	q, _, err := m.dialect.From("events").
		Select(goqu.C("id")).
		Where(goqu.C("id").Eq(eventID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "event existence query to sql")
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := tx.Query(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec event existence query failed")
		return nil, errors.NewExecQueryError(err, "exec event existence query", q)
	}
	found := rows.Next()
	rows.Close()
	if !found {
		m.rollbackTx(ctx, tx, "event not found")
		return nil, errors.NewResourceNotFoundError("event not found", errors.Details{"event": eventID})
	}
	// Clear old supplemental events.
	q, _, err = m.dialect.Delete("supplemental_events").
		Where(goqu.C("event_id").Eq(eventID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "clear supplemental events query to sql")
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec clear supplemental events query failed")
		return nil, errors.NewExecQueryError(err, "exec clear query", q)
	}
	// Create new ones.
	created, err := m.insertSupplementalEventsTx(ctx, tx, eventID, replaceWith)
	if err != nil {
		m.rollbackTx(ctx, tx, "insert supplemental events failed")
		return nil, errors.Wrap(err, "insert supplemental events", nil)
	}
	// Commit.
	err = tx.Commit(ctx)
	if err != nil {
		return nil, errors.NewDBTxCommitError(err)
	}
	return created, nil
}

// insertSupplementalEventsTx inserts the given supplemental events for the
// event with the given id in the given transaction. Ordinals are assigned
// based on the given order.
func (m *Mall) insertSupplementalEventsTx(ctx context.Context, tx pgx.Tx, eventID uuid.UUID,
	create []SupplementalEvent) ([]SupplementalEvent, error) {
	created := make([]SupplementalEvent, 0, len(create))
	for ordinal, supplementalEvent := range create {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, errors.NewUUIDGenError(err)
		}
		supplementalEvent.ID = id
		supplementalEvent.EventID = eventID
		supplementalEvent.Ordinal = ordinal
		// Build query.
		q, _, err := m.dialect.Insert("supplemental_events").Rows(goqu.Record{
			"id":         supplementalEvent.ID,
			"event_id":   supplementalEvent.EventID,
			"type":       supplementalEvent.Type,
			"start_time": supplementalEvent.StartTime,
			"end_time":   supplementalEvent.EndTime,
			"ordinal":    supplementalEvent.Ordinal,
		}).ToSQL()
		if err != nil {
			return nil, errors.NewQueryToSQLError(err, nil)
		}
		// Exec.
		result, err := tx.Exec(ctx, q)
		if err != nil {
			return nil, errors.NewExecQueryError(err, "exec create query", q)
		}
		if result.RowsAffected() != 1 {
			return nil, errors.NewInternalError("supplemental event not created", errors.Details{"query": q})
		}
		created = append(created, supplementalEvent)
	}
	return created, nil
}

// AssignEvent sets or clears the assignee of the event from the given
// Assignment using optimistic locking. The stored version must equal the
// expected one from the Assignment. On success, the version is bumped and the
// updated Event returned. On version mismatch, the authoritative current
// Event is returned along with an ErrConcurrentModification error, so callers
// can explain the discrepancy without another read.
func (m *Mall) AssignEvent(ctx context.Context, assignment Assignment) (Event, error) {
	// Build query.
	q, _, err := m.dialect.Update("events").Set(goqu.Record{
		"assigned_to": assignment.AssignedTo,
		"version":     goqu.L("version + 1"),
	}).Where(goqu.C("id").Eq(assignment.EventID),
		goqu.C("version").Eq(assignment.ExpectedVersion)).ToSQL()
	if err != nil {
		return Event{}, errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return Event{}, errors.NewExecQueryError(err, "exec assign query", q)
	}
	if result.RowsAffected() == 1 {
		updatedEvent, err := m.EventByID(ctx, assignment.EventID)
		if err != nil {
			return Event{}, errors.Wrap(err, "updated event by id", nil)
		}
		return updatedEvent, nil
	}
	// No rows affected. Either the event is unknown or the version does not
	// match. Retrieve the current event for telling these apart and for
	// providing the authoritative state.
	currentEvent, err := m.EventByID(ctx, assignment.EventID)
	if err != nil {
		return Event{}, errors.Wrap(err, "current event by id", nil)
	}
	return currentEvent, errors.NewConcurrentModificationError("event version mismatch", errors.Details{
		"event":               assignment.EventID,
		"expected_version":    assignment.ExpectedVersion,
		"current_version":     currentEvent.Version,
		"current_assigned_to": currentEvent.AssignedTo,
	})
}
