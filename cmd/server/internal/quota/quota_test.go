package quota

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

var huntStart = time.Date(2026, 1, 16, 17, 0, 0, 0, time.UTC)

func testRules() hunt.Rules {
	return hunt.Rules{
		Start:          huntStart,
		End:            huntStart.Add(96 * time.Hour),
		Close:          huntStart.Add(120 * time.Hour),
		MaxGuesses:     20,
		OneHintAtATime: true,
		Hints: hunt.Accrual{
			Enabled:     true,
			PerInterval: []int{1, 1, 1},
			Interval:    24 * time.Hour,
			StartTime:   huntStart.Add(24 * time.Hour),
			MinTeamAge:  24 * time.Hour,
		},
		FreeAnswers: hunt.Accrual{
			Enabled:     true,
			PerInterval: []int{1, 2},
			Interval:    24 * time.Hour,
			StartTime:   huntStart.Add(48 * time.Hour),
			MinTeamAge:  48 * time.Hour,
		},
	}
}

func view(rules hunt.Rules, now time.Time) hunt.TeamView {
	return hunt.TeamView{Rules: rules, ID: uuid.New(), At: now}
}

func TestComputeAccrual(t *testing.T) {
	rules := testRules()
	team := Team{CreatedAt: huntStart.Add(-48 * time.Hour)}

	tests := []struct {
		name  string
		now   time.Time
		hints int
		free  int
	}{
		{name: "before schedule", now: huntStart.Add(23 * time.Hour), hints: 0, free: 0},
		{name: "first interval", now: huntStart.Add(24 * time.Hour), hints: 1, free: 0},
		{name: "second interval", now: huntStart.Add(48*time.Hour + time.Minute), hints: 2, free: 1},
		{name: "schedule exhausted", now: huntStart.Add(95 * time.Hour), hints: 3, free: 3},
		{name: "hunt over", now: huntStart.Add(96 * time.Hour), hints: 0, free: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(rules, team, tt.now, nil, 0)
			assert.Equal(t, tt.hints, s.HintsTotal)
			assert.Equal(t, tt.free, s.FreeAnswersTotal)
		})
	}
}

func TestComputeStartOffsetShiftsSchedule(t *testing.T) {
	rules := testRules()
	team := Team{CreatedAt: huntStart.Add(-72 * time.Hour), StartOffset: 24 * time.Hour}

	s := Compute(rules, team, huntStart, nil, 0)
	assert.Equal(t, 1, s.HintsTotal)
}

func TestComputeYoungTeamOnlyAwarded(t *testing.T) {
	rules := testRules()
	now := huntStart.Add(50 * time.Hour)
	team := Team{CreatedAt: now.Add(-time.Hour), HintsAwarded: 2, FreeAnswersAwarded: 1}

	s := Compute(rules, team, now, nil, 0)
	assert.Equal(t, 2, s.HintsTotal)
	assert.Equal(t, 1, s.FreeAnswersTotal)
}

func TestComputeDisabled(t *testing.T) {
	rules := testRules()
	rules.Hints.Enabled = false
	team := Team{CreatedAt: huntStart.Add(-48 * time.Hour), HintsAwarded: 5}

	s := Compute(rules, team, huntStart.Add(30*time.Hour), nil, 0)
	assert.Equal(t, 0, s.HintsTotal)
	assert.Equal(t, 0, s.HintsRemaining)
}

func TestComputeAnsweredAndObsolete(t *testing.T) {
	rules := testRules()
	team := Team{CreatedAt: huntStart.Add(-48 * time.Hour)}
	now := huntStart.Add(48*time.Hour + time.Minute)

	history := []Hint{
		{PuzzleID: uuid.New(), Status: hints.Answered},
		{PuzzleID: uuid.New(), Status: hints.Obsolete},
	}

	s := Compute(rules, team, now, history, 0)
	require.Equal(t, 2, s.HintsTotal)
	assert.Equal(t, 1, s.HintsUsed)
	assert.Equal(t, 1, s.HintsRemaining)
}

func TestComputeNeverNegative(t *testing.T) {
	rules := testRules()
	team := Team{CreatedAt: huntStart.Add(-48 * time.Hour), FreeAnswersAwarded: -1}
	now := huntStart.Add(24 * time.Hour)

	history := []Hint{
		{Status: hints.Answered},
		{Status: hints.Answered},
		{Status: hints.NoResponse},
		{Status: hints.Refunded},
		{Status: hints.Answered, IsFollowup: true},
	}

	s := Compute(rules, team, now, history, 2)
	assert.Equal(t, 1, s.HintsTotal)
	assert.Equal(t, 3, s.HintsUsed)
	assert.Equal(t, 0, s.HintsRemaining)
	assert.Equal(t, 0, s.FreeAnswersRemaining)
}

func TestComputeIntroPool(t *testing.T) {
	rules := testRules()
	rules.IntroHints = 2
	rules.Hints.PerInterval = []int{4}
	team := Team{CreatedAt: huntStart.Add(-48 * time.Hour)}
	now := huntStart.Add(30 * time.Hour)

	s := Compute(rules, team, now, nil, 0)
	assert.Equal(t, 4, s.HintsRemaining)
	assert.Equal(t, 2, s.IntroHintsRemaining)
	assert.Equal(t, 2, s.NonIntroHintsRemaining)
	assert.Equal(t, 4, s.RelevantHintsRemaining(true))
	assert.Equal(t, 2, s.RelevantHintsRemaining(false))

	// one intro hint used leaves one in the intro pool
	s = Compute(rules, team, now, []Hint{{IsIntro: true, Status: hints.Answered}}, 0)
	assert.Equal(t, 1, s.IntroHintsUsed)
	assert.Equal(t, 1, s.IntroHintsRemaining)
	assert.Equal(t, 2, s.NonIntroHintsRemaining)

	// non-intro usage eats the general pool first but never the intro ceiling
	s = Compute(rules, team, now, []Hint{
		{Status: hints.Answered},
		{Status: hints.Answered},
		{Status: hints.Answered},
	}, 0)
	assert.Equal(t, 1, s.HintsRemaining)
	assert.Equal(t, 1, s.IntroHintsRemaining)
	assert.Equal(t, 0, s.NonIntroHintsRemaining)
}

func TestGate(t *testing.T) {
	rules := testRules()
	now := huntStart.Add(30 * time.Hour)
	puzzle := uuid.New()
	other := uuid.New()

	tests := []struct {
		name    string
		rules   func(hunt.Rules) hunt.Rules
		now     time.Time
		summary Summary
		history []Hint
		req     Request
		code    srverr.PolicyCode
		convert bool
	}{
		{
			name:    "allowed",
			summary: Summary{HintsRemaining: 1, NonIntroHintsRemaining: 1},
			req:     Request{PuzzleID: puzzle},
		},
		{
			name:    "hunt over",
			now:     rules.End,
			summary: Summary{HintsRemaining: 1, NonIntroHintsRemaining: 1},
			req:     Request{PuzzleID: puzzle},
			code:    srverr.CodeHuntClosed,
		},
		{
			name: "no quota",
			req:  Request{PuzzleID: puzzle},
			code: srverr.CodeNoHints,
		},
		{
			name:    "only intro quota on main puzzle",
			summary: Summary{HintsRemaining: 1, IntroHintsRemaining: 1},
			req:     Request{PuzzleID: puzzle},
			code:    srverr.CodeNoHints,
		},
		{
			name:    "intro quota on intro puzzle",
			summary: Summary{HintsRemaining: 1, IntroHintsRemaining: 1},
			req:     Request{PuzzleID: puzzle, IsIntro: true},
		},
		{
			name:    "converts free answer",
			summary: Summary{FreeAnswersRemaining: 1},
			req:     Request{PuzzleID: puzzle},
			convert: true,
		},
		{
			name:    "open hint blocks",
			summary: Summary{HintsRemaining: 2, NonIntroHintsRemaining: 2},
			history: []Hint{{PuzzleID: other, Status: hints.NoResponse}},
			req:     Request{PuzzleID: puzzle},
			code:    srverr.CodeHintOpen,
		},
		{
			name: "open hint allowed when not one at a time",
			rules: func(r hunt.Rules) hunt.Rules {
				r.OneHintAtATime = false
				return r
			},
			summary: Summary{HintsRemaining: 2, NonIntroHintsRemaining: 2},
			history: []Hint{{PuzzleID: other, Status: hints.NoResponse}},
			req:     Request{PuzzleID: puzzle},
		},
		{
			name: "followup to answered thread bypasses open hint and quota",
			history: []Hint{
				{PuzzleID: other, Status: hints.NoResponse},
				{PuzzleID: puzzle, Status: hints.Answered},
			},
			req: Request{PuzzleID: puzzle, IsFollowup: true},
		},
		{
			name: "followup needs answered latest hint",
			history: []Hint{
				{PuzzleID: puzzle, Status: hints.Answered},
				{PuzzleID: puzzle, Status: hints.Refunded},
			},
			req:  Request{PuzzleID: puzzle, IsFollowup: true},
			code: srverr.CodeCannotFollowup,
		},
		{
			name: "followup without thread",
			req:  Request{PuzzleID: puzzle, IsFollowup: true},
			code: srverr.CodeCannotFollowup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rules
			if tt.rules != nil {
				r = tt.rules(r)
			}
			at := now
			if !tt.now.IsZero() {
				at = tt.now
			}

			d, err := Gate(context.Background(), r, view(r, at), tt.summary, tt.history, tt.req)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, srverr.IsPolicy(err, tt.code), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.convert, d.ConvertFreeAnswer)
		})
	}
}
