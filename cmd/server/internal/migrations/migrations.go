// Package migrations holds the hunt schema as goose migrations compiled into the binary.
package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer(
	"github.com/puzzlehunt/huntserver/cmd/server/internal/migrations",
)

// Version table, kept apart from goose's default so a hunt can share a database with other tools.
const versionTable = "huntserver_schema_version"

func init() {
	goose.SetTableName(versionTable)
}

func run(ctx context.Context, db *gorm.DB, op string, fn func(context.Context, *sql.DB) error) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	rawDB, err := db.DB()
	if err == nil {
		err = fn(ctx, rawDB)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to migrate")
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	if v, err := goose.GetDBVersionContext(ctx, rawDB); err == nil {
		span.SetAttributes(attribute.Int64("schema.version", v))
	}
	span.SetStatus(codes.Ok, "migrated")
	return nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *gorm.DB) error {
	return run(ctx, db, "up", func(ctx context.Context, raw *sql.DB) error {
		return goose.UpContext(ctx, raw, ".")
	})
}

// Down rolls back every migration, dropping all hunt data.
func Down(ctx context.Context, db *gorm.DB) error {
	return run(ctx, db, "down", func(ctx context.Context, raw *sql.DB) error {
		return goose.DownToContext(ctx, raw, ".", 0)
	})
}

// Version is the last applied migration, 0 on an empty database.
func Version(ctx context.Context, db *gorm.DB) (int64, error) {
	var version int64
	err := run(ctx, db, "version", func(ctx context.Context, raw *sql.DB) error {
		var err error
		version, err = goose.GetDBVersionContext(ctx, raw)
		return err
	})
	return version, err
}

type statement struct {
	query string
	args  []any
}

func execStatements(ctx context.Context, tx *sql.Tx, statements ...statement) error {
	for i, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement.query, statement.args...); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}
