package requestctx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

var start = time.Date(2026, 1, 16, 17, 0, 0, 0, time.UTC)

type fakeSource struct {
	cat         *catalog.Catalog
	submissions []models.AnswerSubmission
	unlocks     map[uuid.UUID]time.Time
	hints       []models.Hint
	err         error

	catalogCalls, submissionCalls, unlockCalls, hintCalls int
}

func (f *fakeSource) Catalog(context.Context) (*catalog.Catalog, error) {
	f.catalogCalls++
	return f.cat, f.err
}

func (f *fakeSource) Submissions(context.Context, uuid.UUID) ([]models.AnswerSubmission, error) {
	f.submissionCalls++
	return f.submissions, f.err
}

func (f *fakeSource) Unlocks(context.Context, uuid.UUID) (map[uuid.UUID]time.Time, error) {
	f.unlockCalls++
	return f.unlocks, f.err
}

func (f *fakeSource) Hints(context.Context, uuid.UUID) ([]models.Hint, error) {
	f.hintCalls++
	return f.hints, f.err
}

// txSource hands out a separate view for reads inside a transaction.
type txSource struct {
	*fakeSource
	inTx *fakeSource
}

func (s txSource) WithTx(*gorm.DB) requestctx.Source {
	return s.inTx
}

type fakeComputer struct {
	calls int
	last  unlock.TeamState
}

func (f *fakeComputer) Compute(
	_ context.Context,
	cat *catalog.Catalog,
	v hunt.Viewer,
	st unlock.TeamState,
) (unlock.Set, error) {
	f.calls++
	f.last = st
	var out []unlock.Unlock
	for _, p := range cat.Puzzles() {
		out = append(out, unlock.Unlock{Puzzle: p, At: v.StartTime()})
	}
	return unlock.NewSet(out), nil
}

type fixture struct {
	intro *catalog.Puzzle
	main  *catalog.Puzzle
	cat   *catalog.Catalog
}

func newFixture() fixture {
	introRound := &catalog.Round{ID: uuid.New(), Slug: "intro", Name: "Intro", Order: 1}
	mainRound := &catalog.Round{ID: uuid.New(), Slug: "main", Name: "Main", Order: 2}
	intro := &catalog.Puzzle{ID: uuid.New(), Slug: "first", Name: "First", Answer: "ONE", Round: introRound}
	main := &catalog.Puzzle{ID: uuid.New(), Slug: "second", Name: "Second", Answer: "TWO", Round: mainRound}
	return fixture{
		intro: intro,
		main:  main,
		cat:   catalog.New([]*catalog.Puzzle{intro, main}, nil, "intro", ""),
	}
}

func rules() hunt.Rules {
	return hunt.Rules{
		Start:      start,
		End:        start.Add(72 * time.Hour),
		Close:      start.Add(96 * time.Hour),
		Scheme:     hunt.SchemeCounting,
		IntroHints: 1,
		Hints: hunt.Accrual{
			Enabled:     true,
			PerInterval: []int{2},
			Interval:    24 * time.Hour,
			StartTime:   start,
		},
		FreeAnswers: hunt.Accrual{
			Enabled:     true,
			PerInterval: []int{1},
			Interval:    24 * time.Hour,
			StartTime:   start,
		},
	}
}

func newTeam() *models.Team {
	return &models.Team{
		Model:        models.Model{ID: uuid.New()},
		TeamName:     "Testers",
		CreationTime: start.Add(-48 * time.Hour),
	}
}

func TestViewer(t *testing.T) {
	f := newFixture()
	factory := &requestctx.Factory{Rules: rules(), Source: &fakeSource{cat: f.cat}, Computer: &fakeComputer{}}

	t.Run("Anonymous", func(t *testing.T) {
		rc := factory.New(nil, start.Add(time.Hour))
		assert.Equal(t, uuid.Nil, rc.TeamID())
		assert.False(t, rc.IsPrerelease())
		assert.Equal(t, start, rc.StartTime())
		assert.False(t, rc.HuntIsOver())
	})

	t.Run("StartOffset", func(t *testing.T) {
		team := newTeam()
		team.StartOffset = 2 * time.Hour
		rc := factory.New(team, start)
		assert.Equal(t, team.ID, rc.TeamID())
		assert.Equal(t, start.Add(-2*time.Hour), rc.StartTime())
	})

	t.Run("OverAndClosed", func(t *testing.T) {
		rc := factory.New(newTeam(), start.Add(80*time.Hour))
		assert.True(t, rc.HuntIsOver())
		assert.False(t, rc.HuntIsClosed())

		rc = factory.New(newTeam(), start.Add(96*time.Hour))
		assert.True(t, rc.HuntIsClosed())
	})

	t.Run("Prerelease", func(t *testing.T) {
		team := newTeam()
		team.IsPrereleaseTestsolver = true
		assert.True(t, factory.New(team, start).IsPrerelease())
	})
}

func TestMemoized(t *testing.T) {
	f := newFixture()
	team := newTeam()
	solvedAt := start.Add(30 * time.Minute)
	src := &fakeSource{
		cat: f.cat,
		submissions: []models.AnswerSubmission{
			{TeamID: team.ID, PuzzleID: f.intro.ID, SubmittedAnswer: "ONE", SubmittedDatetime: solvedAt, IsCorrect: true},
			{TeamID: team.ID, PuzzleID: f.intro.ID, SubmittedAnswer: "WON", SubmittedDatetime: start},
		},
		unlocks: map[uuid.UUID]time.Time{f.intro.ID: start},
	}
	engine := &fakeComputer{}
	factory := &requestctx.Factory{Rules: rules(), Source: src, Computer: engine}
	rc := factory.New(team, start.Add(time.Hour))
	ctx := context.Background()

	for range 3 {
		set, err := rc.Unlocks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, set.Len())
	}
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, 1, src.catalogCalls)
	assert.Equal(t, 1, src.submissionCalls)
	assert.Equal(t, 1, src.unlockCalls)
	assert.Equal(t, map[uuid.UUID]time.Time{f.intro.ID: solvedAt}, engine.last.Solves)
	assert.Equal(t, src.unlocks, engine.last.Existing)

	guesses, err := rc.PuzzleSubmissions(ctx, f.intro.ID)
	require.NoError(t, err)
	assert.Len(t, guesses, 2)
	guesses, err = rc.PuzzleSubmissions(ctx, f.main.ID)
	require.NoError(t, err)
	assert.Empty(t, guesses)
	assert.Equal(t, 1, src.submissionCalls)

	deep, err := rc.Deep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deep)

	rc.Forget()
	_, err = rc.Unlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls)
	assert.Equal(t, 2, src.submissionCalls)
	assert.Equal(t, 1, src.catalogCalls, "catalog survives Forget")
}

func TestAnonymousNeverReadsTeamRows(t *testing.T) {
	f := newFixture()
	src := &fakeSource{cat: f.cat}
	engine := &fakeComputer{}
	rc := (&requestctx.Factory{Rules: rules(), Source: src, Computer: engine}).New(nil, start)
	ctx := context.Background()

	_, err := rc.Unlocks(ctx)
	require.NoError(t, err)
	subs, err := rc.Submissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	hs, err := rc.Hints(ctx)
	require.NoError(t, err)
	assert.Empty(t, hs)
	q, err := rc.Quota(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.HintsTotal)

	assert.Zero(t, src.submissionCalls)
	assert.Zero(t, src.unlockCalls)
	assert.Zero(t, src.hintCalls)
	assert.Nil(t, engine.last.Solves)
}

func TestQuota(t *testing.T) {
	f := newFixture()
	team := newTeam()
	src := &fakeSource{
		cat: f.cat,
		hints: []models.Hint{
			{TeamID: team.ID, PuzzleID: f.main.ID, Status: hints.Answered},
			{TeamID: team.ID, PuzzleID: f.intro.ID, Status: hints.Obsolete},
		},
		submissions: []models.AnswerSubmission{
			{TeamID: team.ID, PuzzleID: f.main.ID, IsCorrect: true, UsedFreeAnswer: true, SubmittedDatetime: start},
		},
	}
	rc := (&requestctx.Factory{Rules: rules(), Source: src, Computer: &fakeComputer{}}).New(team, start.Add(time.Hour))
	ctx := context.Background()

	q, err := rc.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, q.HintsTotal)
	assert.Equal(t, 1, q.HintsUsed)
	assert.Equal(t, 1, q.HintsRemaining)
	assert.Equal(t, 1, q.FreeAnswersTotal)
	assert.Equal(t, 1, q.FreeAnswersUsed)
	assert.Equal(t, 0, q.FreeAnswersRemaining)

	history, err := rc.HintHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsIntro)
	assert.True(t, history[1].IsIntro)

	_, err = rc.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.hintCalls)

	awarded := *team
	awarded.TotalHintsAwarded = 3
	rc.Reload(&awarded)
	q, err = rc.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, q.HintsTotal)
	assert.Equal(t, 4, q.HintsRemaining)
	assert.Equal(t, 2, src.hintCalls)
}

func TestSourceErrors(t *testing.T) {
	f := newFixture()
	boom := errors.New("boom")
	src := &fakeSource{cat: f.cat, err: boom}
	rc := (&requestctx.Factory{Rules: rules(), Source: src, Computer: &fakeComputer{}}).New(newTeam(), start)

	_, err := rc.Unlocks(context.Background())
	require.ErrorIs(t, err, boom)

	src.err = nil
	set, err := rc.Unlocks(context.Background())
	require.NoError(t, err, "a failed load is not cached")
	assert.Equal(t, 2, set.Len())
}

func TestInTx(t *testing.T) {
	f := newFixture()
	team := newTeam()
	outside := &fakeSource{cat: f.cat}
	inside := &fakeSource{hints: []models.Hint{
		{TeamID: team.ID, PuzzleID: f.main.ID, SubmittedDatetime: start, Status: hints.NoResponse},
	}}
	engine := &fakeComputer{}
	factory := &requestctx.Factory{Rules: rules(), Source: txSource{fakeSource: outside, inTx: inside}, Computer: engine}
	rc := factory.New(team, start.Add(time.Hour))
	ctx := context.Background()

	_, err := rc.Unlocks(ctx)
	require.NoError(t, err)
	q, err := rc.Quota(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.HintsUsed)

	locked := *team
	locked.TotalHintsAwarded = 1
	txc := rc.InTx(nil, &locked)

	history, err := txc.HintHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1, "another request's hint is visible inside the transaction")
	q, err = txc.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.HintsUsed)

	_, err = txc.Unlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.calls, "unlocks carry over")
	assert.Zero(t, inside.catalogCalls, "catalog carries over")

	q, err = rc.Quota(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.HintsUsed, "the outer context is untouched")
}
