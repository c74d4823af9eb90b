package store

import (
	"bytes"
	"context"
	nativeerrors "errors"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/kinhub/kinhub-server/errors"
	"time"
)

// pgUniqueViolationCode is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolationCode = "23505"

// ResolutionReason is why a conflict between two events is considered
// resolved.
type ResolutionReason string

const (
	// ResolutionReasonSameLocation is used when both events happen at the same
	// location and therefore no travel in between is needed.
	ResolutionReasonSameLocation ResolutionReason = "same_location"
	// ResolutionReasonOther is used for any other reason.
	ResolutionReasonOther ResolutionReason = "other"
)

// ConflictResolution marks the scheduling conflict between two events as
// accepted for an assignee. Pairs are stored in normalized order with
// EventAID being the smaller id, so that each pair has a single
// representation.
type ConflictResolution struct {
	// ID identifies the resolution.
	ID uuid.UUID
	// EventAID is the id of the first event of the pair.
	EventAID uuid.UUID
	// EventBID is the id of the second event of the pair.
	EventBID uuid.UUID
	// Reason is why the conflict is considered resolved.
	Reason ResolutionReason
	// AssignedUserID is the id of the user both events are assigned to.
	AssignedUserID uuid.UUID
	// ResolvedAt is the time the resolution was applied.
	ResolvedAt time.Time
}

// normalizeResolutionPair orders the event pair of the given
// ConflictResolution so that EventAID is the smaller id.
func normalizeResolutionPair(resolution ConflictResolution) ConflictResolution {
	if bytes.Compare(resolution.EventAID[:], resolution.EventBID[:]) > 0 {
		resolution.EventAID, resolution.EventBID = resolution.EventBID, resolution.EventAID
	}
	return resolution
}

// ApplyConflictResolution resolves the conflict between the event pair from
// the given ConflictResolution. In a single transaction, all travel and
// buffer supplemental events of both events are deleted, both event versions
// are bumped, and the resolution is recorded. The first return value
// describes whether the resolution was applied. If the same pair was already
// resolved before, nothing is changed and false is returned without error.
func (m *Mall) ApplyConflictResolution(ctx context.Context, apply ConflictResolution) (bool, error) {
	apply = normalizeResolutionPair(apply)
	eventIDs := []uuid.UUID{apply.EventAID, apply.EventBID}
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return false, errors.NewDBTxBeginError(err)
	}
	// Build query for checking whether the pair is already resolved.
	q, _, err := m.dialect.From("conflict_resolutions").
		Select(goqu.C("id")).
		Where(goqu.C("event_a_id").Eq(apply.EventAID),
			goqu.C("event_b_id").Eq(apply.EventBID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "resolved lookup query to sql")
		return false, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := tx.Query(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec resolved lookup query failed")
		return false, errors.NewExecQueryError(err, "exec resolved lookup query", q)
	}
	alreadyResolved := rows.Next()
	rows.Close()
	if alreadyResolved {
		m.rollbackTx(ctx, tx, "resolution already recorded")
		return false, nil
	}
	// Delete travel and buffer supplemental events of both events.
	q, _, err = m.dialect.Delete("supplemental_events").
		Where(goqu.C("event_id").In(eventIDs),
			goqu.C("type").In(SupplementalEventTypeDeparture,
				SupplementalEventTypeBuffer,
				SupplementalEventTypeReturn)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "delete supplemental events query to sql")
		return false, errors.NewQueryToSQLError(err, nil)
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec delete supplemental events query failed")
		return false, errors.NewExecQueryError(err, "exec delete supplemental events query", q)
	}
	// Bump both event versions.
	q, _, err = m.dialect.Update("events").Set(goqu.Record{
		"version": goqu.L("version + 1"),
	}).Where(goqu.C("id").In(eventIDs)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "bump versions query to sql")
		return false, errors.NewQueryToSQLError(err, nil)
	}
	result, err := tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec bump versions query failed")
		return false, errors.NewExecQueryError(err, "exec bump versions query", q)
	}
	if result.RowsAffected() != 2 {
		m.rollbackTx(ctx, tx, "event of resolution pair not found")
		return false, errors.NewResourceNotFoundError("event not found",
			errors.Details{"event_a": apply.EventAID, "event_b": apply.EventBID})
	}
	// Record resolution.
	resolutionID, err := uuid.NewRandom()
	if err != nil {
		m.rollbackTx(ctx, tx, "gen resolution id failed")
		return false, errors.NewUUIDGenError(err)
	}
	q, _, err = m.dialect.Insert("conflict_resolutions").Rows(goqu.Record{
		"id":               resolutionID,
		"event_a_id":       apply.EventAID,
		"event_b_id":       apply.EventBID,
		"reason":           apply.Reason,
		"assigned_user_id": apply.AssignedUserID,
		"resolved_at":      time.Now(),
	}).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "record resolution query to sql")
		return false, errors.NewQueryToSQLError(err, nil)
	}
	_, err = tx.Exec(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "record resolution failed")
		// A concurrent resolution of the same pair may have landed between our
		// lookup and the insert. The unique index on the pair then rejects our
		// insert, and we treat the resolution as already applied.
		var pgErr *pgconn.PgError
		if nativeerrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return false, nil
		}
		return false, errors.NewExecQueryError(err, "exec record resolution query", q)
	}
	// Commit.
	err = tx.Commit(ctx)
	if err != nil {
		return false, errors.NewDBTxCommitError(err)
	}
	return true, nil
}

// ConflictResolutions retrieves all recorded conflict resolutions, ordered by
// the time they were applied, newest first.
func (m *Mall) ConflictResolutions(ctx context.Context) ([]ConflictResolution, error) {
	// Build query.
	q, _, err := m.dialect.From("conflict_resolutions").
		Select(goqu.C("id"),
			goqu.C("event_a_id"),
			goqu.C("event_b_id"),
			goqu.C("reason"),
			goqu.C("assigned_user_id"),
			goqu.C("resolved_at")).
		Order(goqu.C("resolved_at").Desc(), goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query conflict resolutions", q)
	}
	defer rows.Close()
	// Scan.
	resolutions := make([]ConflictResolution, 0)
	for rows.Next() {
		var resolution ConflictResolution
		err = rows.Scan(&resolution.ID,
			&resolution.EventAID,
			&resolution.EventBID,
			&resolution.Reason,
			&resolution.AssignedUserID,
			&resolution.ResolvedAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}
