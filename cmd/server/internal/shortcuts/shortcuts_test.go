package shortcuts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/shortcuts"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

func registry(calls *[]string) *shortcuts.Registry {
	record := func(name string) shortcuts.Action {
		return func(context.Context, shortcuts.Binding) error {
			*calls = append(*calls, name)
			return nil
		}
	}
	team := []shortcuts.Param{shortcuts.ParamTeam}
	puzzleTeam := []shortcuts.Param{shortcuts.ParamPuzzle, shortcuts.ParamTeam}

	return shortcuts.New(
		shortcuts.Entry{Name: "toggle", Label: "Toggle", Params: team, Run: record("toggle")},
		shortcuts.Heading("Puzzle", puzzleTeam...),
		shortcuts.Entry{Name: "solve", Label: "Solve", Params: puzzleTeam, Run: record("solve")},
		shortcuts.Entry{Name: "wipe", Label: "Wipe", Params: puzzleTeam, Danger: true, Run: record("wipe")},
		shortcuts.Entry{
			Name:   "fail",
			Label:  "Fail",
			Params: []shortcuts.Param{shortcuts.ParamNow},
			Run: func(context.Context, shortcuts.Binding) error {
				return errors.New("boom")
			},
		},
	)
}

func teamView() *requestctx.Context {
	f := &requestctx.Factory{Rules: hunt.Rules{}}
	return f.New(&models.Team{Model: models.Model{ID: uuid.New()}, TeamName: "Staff"}, time.Now())
}

func TestList(t *testing.T) {
	var calls []string
	r := registry(&calls)
	puzzle := &catalog.Puzzle{ID: uuid.New(), Slug: "sample"}

	t.Run("Nothing", func(t *testing.T) {
		assert.Empty(t, r.List(shortcuts.Binding{}))
	})

	t.Run("NoTeamOnView", func(t *testing.T) {
		anon := (&requestctx.Factory{}).New(nil, time.Now())
		assert.Empty(t, r.List(shortcuts.Binding{Team: anon, Puzzle: puzzle}))
	})

	t.Run("TeamOnly", func(t *testing.T) {
		items := r.List(shortcuts.Binding{Team: teamView()})
		assert.Equal(t, []shortcuts.Item{{Action: "toggle", Name: "Toggle"}}, items)
	})

	t.Run("Everything", func(t *testing.T) {
		items := r.List(shortcuts.Binding{Team: teamView(), Puzzle: puzzle, Now: time.Now()})
		assert.Equal(t, []shortcuts.Item{
			{Action: "toggle", Name: "Toggle"},
			{Name: "Puzzle"},
			{Action: "solve", Name: "Solve"},
			{Action: "wipe", Name: "Wipe", Danger: true},
			{Action: "fail", Name: "Fail"},
		}, items)
	})
}

func TestDispatch(t *testing.T) {
	var calls []string
	r := registry(&calls)
	ctx := context.Background()
	full := shortcuts.Binding{Team: teamView(), Puzzle: &catalog.Puzzle{ID: uuid.New()}, Now: time.Now()}

	require.NoError(t, r.Dispatch(ctx, "solve", full))
	assert.Equal(t, []string{"solve"}, calls)

	err := r.Dispatch(ctx, "solve", shortcuts.Binding{Team: teamView()})
	require.True(t, srverr.IsPolicy(err, srverr.CodeShortcutUnbound))
	assert.Len(t, calls, 1, "an unbound shortcut does not run")

	var verr *srverr.ValidationError
	require.ErrorAs(t, r.Dispatch(ctx, "nope", full), &verr)
	require.ErrorAs(t, r.Dispatch(ctx, "", full), &verr, "headings cannot be dispatched")

	assert.ErrorContains(t, r.Dispatch(ctx, "fail", full), "boom")
}

func TestNewRejectsDuplicates(t *testing.T) {
	run := func(context.Context, shortcuts.Binding) error { return nil }
	assert.Panics(t, func() {
		shortcuts.New(
			shortcuts.Entry{Name: "a", Run: run},
			shortcuts.Entry{Name: "a", Run: run},
		)
	})
	assert.Panics(t, func() {
		shortcuts.New(shortcuts.Entry{Label: "nameless", Run: run})
	})
}
