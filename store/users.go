package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/errors"
	"time"
)

// User is a household member that events can be assigned to.
type User struct {
	// ID identifies the user.
	ID uuid.UUID
	// Name is the human-readable display name.
	Name string
	// Color is an optional hex color used by dashboards.
	Color nulls.String
	// CreatedAt is the time the user was created.
	CreatedAt time.Time
}

// Users retrieves all known users, ordered by their name.
func (m *Mall) Users(ctx context.Context) ([]User, error) {
	// Build query.
	q, _, err := m.dialect.From("users").
		Select(goqu.C("id"),
			goqu.C("name"),
			goqu.C("color"),
			goqu.C("created_at")).
		Order(goqu.C("name").Asc(), goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, "query users", q)
	}
	defer rows.Close()
	// Scan.
	users := make([]User, 0)
	for rows.Next() {
		var user User
		err = rows.Scan(&user.ID,
			&user.Name,
			&user.Color,
			&user.CreatedAt)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, "scan row", q)
		}
		users = append(users, user)
	}
	return users, nil
}

// UserByID retrieves the User with the given id.
func (m *Mall) UserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	// Build query.
	q, _, err := m.dialect.From("users").
		Select(goqu.C("id"),
			goqu.C("name"),
			goqu.C("color"),
			goqu.C("created_at")).
		Where(goqu.C("id").Eq(userID)).ToSQL()
	if err != nil {
		return User{}, errors.NewQueryToSQLError(err, nil)
	}
	// Query.
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return User{}, errors.NewExecQueryError(err, "query user", q)
	}
	defer rows.Close()
	// Scan.
	if !rows.Next() {
		return User{}, errors.NewResourceNotFoundError("user not found", errors.Details{"user": userID})
	}
	var user User
	err = rows.Scan(&user.ID,
		&user.Name,
		&user.Color,
		&user.CreatedAt)
	if err != nil {
		return User{}, errors.NewScanDBRowError(err, "scan row", q)
	}
	return user, nil
}

// CreateUser creates the given User and returns it with all generated fields
// set.
func (m *Mall) CreateUser(ctx context.Context, create User) (User, error) {
	userID, err := uuid.NewRandom()
	if err != nil {
		return User{}, errors.NewUUIDGenError(err)
	}
	create.ID = userID
	create.CreatedAt = time.Now()
	// Build query.
	q, _, err := m.dialect.Insert("users").Rows(goqu.Record{
		"id":         create.ID,
		"name":       create.Name,
		"color":      create.Color,
		"created_at": create.CreatedAt,
	}).ToSQL()
	if err != nil {
		return User{}, errors.NewQueryToSQLError(err, nil)
	}
	// Exec.
	result, err := m.db.Exec(ctx, q)
	if err != nil {
		return User{}, errors.NewExecQueryError(err, "exec create query", q)
	}
	if result.RowsAffected() != 1 {
		return User{}, errors.NewInternalError("user not created", errors.Details{"query": q})
	}
	return create, nil
}
