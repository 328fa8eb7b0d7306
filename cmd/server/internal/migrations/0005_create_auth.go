package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE auth (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    token TEXT NOT NULL,
    note TEXT NOT NULL,
    permissions JSONB NOT NULL,
    active BOOLEAN NOT NULL,
    team_id UUID REFERENCES teams (id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX auth_active_index ON auth (active);`},
	)
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP INDEX auth_active_index;`},
		statement{query: `DROP TABLE auth;`},
	)
}
