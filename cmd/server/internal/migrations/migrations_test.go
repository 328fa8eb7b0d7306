package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestMigrations(t *testing.T) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16.4-alpine",
		postgres.WithDatabase("huntserver"),
		postgres.WithUsername("huntserver"),
		postgres.WithPassword("huntserver"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	defer func() {
		err = testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	}()
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn))
	require.NoError(t, err, "failed to connect to the database")

	require.NoError(t, Up(ctx, db), "failed to migrate db")

	var roundID, puzzleID, teamID string
	require.NoError(t, db.Raw(
		`INSERT INTO rounds (name, slug) VALUES ('Intro', 'intro') RETURNING id`,
	).Scan(&roundID).Error)
	require.NoError(t, db.Raw(
		`INSERT INTO puzzles (name, slug, answer, round_id) VALUES ('First', 'first', 'ANSWER', ?) RETURNING id`,
		roundID,
	).Scan(&puzzleID).Error)
	require.NoError(t, db.Raw(
		`INSERT INTO teams (team_name, creation_time) VALUES ('Team', now()) RETURNING id`,
	).Scan(&teamID).Error)

	t.Run("PuzzleDefaults", func(t *testing.T) {
		var row struct {
			Emoji        string
			UnlockHours  int
			UnlockGlobal int
			UnlockLocal  int
		}
		require.NoError(t, db.Raw(
			`SELECT emoji, unlock_hours, unlock_global, unlock_local FROM puzzles WHERE id = ?`, puzzleID,
		).Scan(&row).Error)

		assert.Equal(t, ":question:", row.Emoji)
		assert.Equal(t, -1, row.UnlockHours)
		assert.Equal(t, -1, row.UnlockGlobal)
		assert.Equal(t, -1, row.UnlockLocal)
	})

	t.Run("UnlockUnique", func(t *testing.T) {
		insert := `INSERT INTO puzzle_unlocks (team_id, puzzle_id, unlock_datetime) VALUES (?, ?, now())`
		require.NoError(t, db.Exec(insert, teamID, puzzleID).Error)
		assert.Error(t, db.Exec(insert, teamID, puzzleID).Error, "second unlock row should be refused")
	})

	t.Run("SubmissionUnique", func(t *testing.T) {
		insert := `
INSERT INTO answer_submissions (team_id, puzzle_id, submitted_answer, submitted_datetime, is_correct)
VALUES (?, ?, ?, now(), ?)`
		require.NoError(t, db.Exec(insert, teamID, puzzleID, "WRONG", false).Error)
		assert.Error(t, db.Exec(insert, teamID, puzzleID, "WRONG", false).Error, "same text twice")

		require.NoError(t, db.Exec(insert, teamID, puzzleID, "ANSWER", true).Error)
		assert.Error(t, db.Exec(insert, teamID, puzzleID, "OTHER", true).Error, "second correct row")
	})

	t.Run("HintStatusChecked", func(t *testing.T) {
		err := db.Exec(`
INSERT INTO hints (team_id, puzzle_id, hint_question, submitted_datetime, status)
VALUES (?, ?, 'help', now(), 'BOGUS')`, teamID, puzzleID).Error
		assert.Error(t, err)
	})

	t.Run("TouchUpdatedAt", func(t *testing.T) {
		var before, after time.Time
		require.NoError(t, db.Raw(`SELECT updated_at FROM teams WHERE id = ?`, teamID).Scan(&before).Error)
		require.NoError(t, db.Exec(`UPDATE teams SET is_hidden = TRUE WHERE id = ?`, teamID).Error)
		require.NoError(t, db.Raw(`SELECT updated_at FROM teams WHERE id = ?`, teamID).Scan(&after).Error)

		assert.True(t, after.After(before), "updated_at should move forward")
	})

	t.Run("TeamDeleteCascades", func(t *testing.T) {
		require.NoError(t, db.Exec(`DELETE FROM teams WHERE id = ?`, teamID).Error)

		var n int64
		require.NoError(t, db.Raw(
			`SELECT (SELECT count(*) FROM puzzle_unlocks) + (SELECT count(*) FROM answer_submissions)`,
		).Scan(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("TimeOrderedIDs", func(t *testing.T) {
		var raw string
		require.NoError(t, db.Raw(`SELECT huntserver_uuidv7()::text`).Scan(&raw).Error)
		id, err := uuid.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
		assert.Equal(t, uuid.RFC4122, id.Variant())

		sec, nsec := id.Time().UnixTime()
		assert.WithinDuration(t, time.Now(), time.Unix(sec, nsec), time.Minute)
	})

	t.Run("DownAndUpAgain", func(t *testing.T) {
		require.NoError(t, Down(ctx, db), "failed to migrate down")
		v, err := Version(ctx, db)
		require.NoError(t, err)
		assert.Zero(t, v)

		require.NoError(t, Up(ctx, db), "failed to migrate up after down")
		v, err = Version(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})
}
