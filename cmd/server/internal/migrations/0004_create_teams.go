package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE teams (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_name TEXT NOT NULL UNIQUE,
    creation_time TIMESTAMP WITH TIME ZONE NOT NULL,
    start_offset BIGINT NOT NULL DEFAULT 0,
    total_hints_awarded INTEGER NOT NULL DEFAULT 0,
    total_free_answers_awarded INTEGER NOT NULL DEFAULT 0,
    last_solve_time TIMESTAMP WITH TIME ZONE,
    is_prerelease_testsolver BOOLEAN NOT NULL DEFAULT FALSE,
    is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE team_members (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX team_members_team_id_index ON team_members (team_id);`},
	)
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE team_members;`},
		statement{query: `DROP TABLE teams;`},
	)
}
