// Package migrations ships the device directory schema inside the
// binary. Importing it (blank import from cmd/farsight) hands every
// .sql file in this directory to the database package's migration
// runner, so deployments never need the SQL on disk.
package migrations

import (
	"embed"

	"github.com/farsight-labs/farsight-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "." // files sit at the embed root
}
