// Package embedded carries compile-time assets like database migration
// scripts.
package embedded

import (
	_ "embed"
)

// Database migrations. Each script moves the schema up from its predecessor
// and is applied in order by the app package.
var (
	// DBMigration1x0 is the initial schema with users, events and supplemental
	// events.
	//go:embed sql/1x0.sql
	DBMigration1x0 string
	// DBMigration1x1 adds conflict resolutions.
	//go:embed sql/1x1.sql
	DBMigration1x1 string
	// DBMigration1x2 adds connected devices.
	//go:embed sql/1x2.sql
	DBMigration1x2 string
)
