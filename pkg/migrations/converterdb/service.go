// Package converterdb holds all the migrations for the converter database
package converterdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the converter database
var Migrations = migrate.NewMigrations()
