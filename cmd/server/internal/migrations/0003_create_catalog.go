package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0003, Down0003)
}

func Up0003(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE rounds (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    sort_order INTEGER NOT NULL DEFAULT 0,
    meta_id UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE TABLE puzzles (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    name TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    answer TEXT NOT NULL,
    round_id UUID NOT NULL REFERENCES rounds (id),
    sort_order INTEGER NOT NULL DEFAULT 0,
    is_meta BOOLEAN NOT NULL DEFAULT FALSE,
    emoji TEXT NOT NULL DEFAULT ':question:',
    unlock_hours INTEGER NOT NULL DEFAULT -1,
    unlock_global INTEGER NOT NULL DEFAULT -1,
    unlock_local INTEGER NOT NULL DEFAULT -1,
    deep_threshold INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX puzzles_round_order_index ON puzzles (round_id, sort_order);`},
		statement{query: `
ALTER TABLE rounds ADD CONSTRAINT rounds_meta_id_fkey
    FOREIGN KEY (meta_id) REFERENCES puzzles (id) ON DELETE SET NULL;`},
		statement{query: `
CREATE TABLE meta_requirements (
    meta_id UUID NOT NULL REFERENCES puzzles (id) ON DELETE CASCADE,
    feeder_id UUID NOT NULL REFERENCES puzzles (id) ON DELETE CASCADE,
    PRIMARY KEY (meta_id, feeder_id)
);`},
		statement{query: `
CREATE TABLE puzzle_messages (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    puzzle_id UUID NOT NULL REFERENCES puzzles (id) ON DELETE CASCADE,
    guess TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    UNIQUE (puzzle_id, guess)
);`},
	)
}

func Down0003(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE puzzle_messages;`},
		statement{query: `DROP TABLE meta_requirements;`},
		statement{query: `ALTER TABLE rounds DROP CONSTRAINT rounds_meta_id_fkey;`},
		statement{query: `DROP TABLE puzzles;`},
		statement{query: `DROP TABLE rounds;`},
	)
}
