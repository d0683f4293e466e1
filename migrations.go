package concierge

import "embed"

// MigrationsFS holds the Postgres schema migrations applied by core/db.Migrate.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
