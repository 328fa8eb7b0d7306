package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0006, Down0006)
}

// Every uniqueness constraint here is relied on by concurrent requests; inserts go through
// ON CONFLICT instead of a prior lookup.
func Up0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `
CREATE TABLE puzzle_unlocks (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    puzzle_id UUID NOT NULL REFERENCES puzzles (id),
    unlock_datetime TIMESTAMP WITH TIME ZONE NOT NULL,
    view_datetime TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    UNIQUE (team_id, puzzle_id)
);`},
		statement{query: `
CREATE TABLE answer_submissions (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    puzzle_id UUID NOT NULL REFERENCES puzzles (id),
    submitted_answer TEXT NOT NULL,
    submitted_datetime TIMESTAMP WITH TIME ZONE NOT NULL,
    is_correct BOOLEAN NOT NULL,
    used_free_answer BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    UNIQUE (team_id, puzzle_id, submitted_answer)
);`},
		statement{query: `
CREATE UNIQUE INDEX answer_submissions_one_correct_index
    ON answer_submissions (team_id, puzzle_id) WHERE is_correct;`},
		statement{query: `
CREATE INDEX answer_submissions_puzzle_correct_index
    ON answer_submissions (puzzle_id) WHERE is_correct;`},
		statement{query: `
CREATE TABLE hints (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    puzzle_id UUID NOT NULL REFERENCES puzzles (id),
    is_followup BOOLEAN NOT NULL DEFAULT FALSE,
    hint_question TEXT NOT NULL,
    notify_emails TEXT NOT NULL DEFAULT 'none',
    submitted_datetime TIMESTAMP WITH TIME ZONE NOT NULL,
    answered_datetime TIMESTAMP WITH TIME ZONE,
    status TEXT NOT NULL DEFAULT 'NR' CHECK (status IN ('NR', 'ANS', 'REF', 'OBS')),
    response TEXT NOT NULL DEFAULT '',
    claimed_datetime TIMESTAMP WITH TIME ZONE,
    claimer TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp
);`},
		statement{query: `
CREATE INDEX hints_team_puzzle_index ON hints (team_id, puzzle_id);`},
		statement{query: `
CREATE INDEX hints_open_index ON hints (submitted_datetime) WHERE status = 'NR';`},
		statement{query: `
CREATE TABLE extra_guess_grants (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    puzzle_id UUID NOT NULL REFERENCES puzzles (id),
    extra_guesses INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    UNIQUE (team_id, puzzle_id)
);`},
		statement{query: `
CREATE TABLE surveys (
    id UUID PRIMARY KEY DEFAULT huntserver_uuidv7(),
    team_id UUID NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
    puzzle_id UUID NOT NULL REFERENCES puzzles (id),
    fun INTEGER NOT NULL CHECK (fun BETWEEN 1 AND 6),
    difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 6),
    comments TEXT NOT NULL DEFAULT '',
    submitted_datetime TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    UNIQUE (team_id, puzzle_id)
);`},
	)
}

func Down0006(ctx context.Context, tx *sql.Tx) error {
	return execStatements(ctx, tx,
		statement{query: `DROP TABLE surveys;`},
		statement{query: `DROP TABLE extra_guess_grants;`},
		statement{query: `DROP TABLE hints;`},
		statement{query: `DROP TABLE answer_submissions;`},
		statement{query: `DROP TABLE puzzle_unlocks;`},
	)
}
