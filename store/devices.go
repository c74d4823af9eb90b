package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/kinhub/kinhub-server/errors"
	"time"
)

// Device is a known household device like a kitchen display or a wall
// calendar that connects via the portal.
type Device struct {
	// ID is the id the device chose for itself.
	ID string
	// Type is the self-assigned device type like "display".
	Type string
	// LastSeen is the time of the last announcement from the Device.
	LastSeen time.Time
	// Name is an optional name assigned by the household.
	Name nulls.String
	// Config is optional device configuration, stored as raw JSON so that the
	// server does not need to understand it.
	Config nulls.ByteSlice
}

// DeviceByID retrieves a Device by its id.
func (m *Mall) DeviceByID(ctx context.Context, deviceID string) (Device, error) {
	// Build query.
	q, _, err := m.dialect.From("devices").
		Select(goqu.C("id"),
			goqu.C("type"),
			goqu.C("last_seen"),
			goqu.C("name"),
			goqu.C("config")).
		Where(goqu.C("id").Eq(deviceID)).ToSQL()
	if err != nil {
		return Device{}, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return Device{}, errors.NewExecQueryError(err, "query device", q)
	}
	defer rows.Close()
	// Scan.
	if !rows.Next() {
		return Device{}, errors.NewResourceNotFoundError("device not found", errors.Details{"device": deviceID})
	}
	var device Device
	err = rows.Scan(&device.ID,
		&device.Type,
		&device.LastSeen,
		&device.Name,
		&device.Config)
	if err != nil {
		return Device{}, errors.NewScanDBRowError(err, "scan row", q)
	}
	return device, nil
}

// RegisterDevice looks up the Device with the given id, creating it with
// defaults when it is unknown. The second return value reports whether it was
// created. The last seen timestamp is always bumped. A known device that
// announces a different type than before gets its config cleared as the old
// one no longer applies.
func (m *Mall) RegisterDevice(ctx context.Context, deviceID string, deviceType string) (Device, bool, error) {
	// Begin tx.
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return Device{}, false, errors.NewDBTxBeginError(err)
	}
	// Build lookup and type check query.
	q, _, err := m.dialect.From("devices").
		Select(goqu.C("type")).
		Where(goqu.C("id").Eq(deviceID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "lookup query to sql")
		return Device{}, false, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := tx.Query(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "exec lookup query failed")
		return Device{}, false, errors.NewExecQueryError(err, "exec lookup query", q)
	}
	var oldType string
	found := rows.Next()
	if found {
		err = rows.Scan(&oldType)
		if err != nil {
			rows.Close()
			m.rollbackTx(ctx, tx, "scan device type failed")
			return Device{}, false, errors.NewScanDBRowError(err, "scan device type", q)
		}
	}
	rows.Close()
	if found {
		// Update last seen timestamp.
		newRecord := goqu.Record{
			"last_seen": time.Now(),
		}
		// Clear the config when the type changed.
		if deviceType != oldType {
			newRecord["type"] = deviceType
			newRecord["config"] = nulls.ByteSlice{}
		}
		q, _, err = m.dialect.Update("devices").Set(newRecord).Where(goqu.C("id").Eq(deviceID)).ToSQL()
		if err != nil {
			m.rollbackTx(ctx, tx, "update last seen query to sql")
			return Device{}, false, errors.NewQueryToSQLError(err, nil)
		}
		_, err = tx.Exec(ctx, q)
		if err != nil {
			m.rollbackTx(ctx, tx, "exec update last seen query failed")
			return Device{}, false, errors.NewExecQueryError(err, "exec update last seen query", q)
		}
	} else {
		// Not found -> create.
		q, _, err = m.dialect.Insert("devices").Rows(goqu.Record{
			"id":        deviceID,
			"type":      deviceType,
			"last_seen": time.Now(),
		}).ToSQL()
		if err != nil {
			m.rollbackTx(ctx, tx, "create query to sql")
			return Device{}, false, errors.NewQueryToSQLError(err, nil)
		}
		// Exec.
		result, err := tx.Exec(ctx, q)
		if err != nil {
			m.rollbackTx(ctx, tx, "exec create query failed")
			return Device{}, false, errors.NewExecQueryError(err, "exec create query", q)
		}
		if result.RowsAffected() != 1 {
			m.rollbackTx(ctx, tx, "device not created")
			return Device{}, false, errors.NewInternalError("new device not created", errors.Details{"query": q})
		}
	}
	// Build final retrieve query.
	q, _, err = m.dialect.From("devices").
		Select(goqu.C("id"),
			goqu.C("type"),
			goqu.C("last_seen"),
			goqu.C("name"),
			goqu.C("config")).
		Where(goqu.C("id").Eq(deviceID)).ToSQL()
	if err != nil {
		m.rollbackTx(ctx, tx, "retrieve query to sql")
		return Device{}, false, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err = tx.Query(ctx, q)
	if err != nil {
		m.rollbackTx(ctx, tx, "query final device failed")
		return Device{}, false, errors.NewExecQueryError(err, "query final device", q)
	}
	// Scan.
	if !rows.Next() {
		rows.Close()
		m.rollbackTx(ctx, tx, "device missing after register")
		return Device{}, false, errors.NewInternalError("device missing after register", nil)
	}
	var device Device
	err = rows.Scan(&device.ID,
		&device.Type,
		&device.LastSeen,
		&device.Name,
		&device.Config)
	if err != nil {
		rows.Close()
		m.rollbackTx(ctx, tx, "scan final row failed")
		return Device{}, false, errors.NewScanDBRowError(err, "scan final row", q)
	}
	rows.Close()
	// Commit.
	err = tx.Commit(ctx)
	if err != nil {
		return Device{}, false, errors.NewDBTxCommitError(err)
	}
	return device, !found, nil
}

// UpdateDeviceLastSeen updates the last seen timestamp for the device with the
// given id.
func (m *Mall) UpdateDeviceLastSeen(ctx context.Context, deviceID string) error {
	// Build query.
	q, _, err := m.dialect.Update("devices").Set(goqu.Record{
		"last_seen": time.Now(),
	}).Where(goqu.C("id").Eq(deviceID)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return errors.NewExecQueryError(err, "exec query", q)
	}
	// Assure found.
	if result.RowsAffected() != 1 {
		return errors.NewResourceNotFoundError("device not found", errors.Details{"device": deviceID})
	}
	return nil
}
