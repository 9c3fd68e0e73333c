package audit

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	sharederrors "github.com/pipelineguard/remediator/pkg/shared/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration embedded in the binary.
// It is idempotent: goose tracks applied versions in its own bookkeeping
// table and skips what is already current.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return sharederrors.FailedTo("set goose dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return sharederrors.FailedTo("apply audit schema migrations", err)
	}
	return nil
}
