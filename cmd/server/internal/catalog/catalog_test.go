package catalog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() (*Catalog, map[string]*Puzzle) {
	intro := &Round{ID: uuid.New(), Slug: "intro", Name: "Intro", Order: 0}
	main := &Round{ID: uuid.New(), Slug: "main", Name: "Main", Order: 1}

	mk := func(slug string, round *Round, order int, meta bool, deep int) *Puzzle {
		return &Puzzle{
			ID:            uuid.New(),
			Slug:          slug,
			Name:          slug,
			Answer:        slug,
			Round:         round,
			Order:         order,
			IsMeta:        meta,
			UnlockHours:   -1,
			UnlockGlobal:  -1,
			UnlockLocal:   -1,
			DeepThreshold: deep,
		}
	}

	ps := map[string]*Puzzle{
		"m2":        mk("m2", main, 2, false, 10),
		"i1":        mk("i1", intro, 1, false, 0),
		"main-meta": mk("main-meta", main, 9, true, 20),
		"m1":        mk("m1", main, 1, false, 5),
		"i2":        mk("i2", intro, 2, false, 0),
		"meta-meta": mk("meta-meta", main, 10, true, 30),
	}

	reqs := []Requirement{
		{MetaID: ps["main-meta"].ID, FeederID: ps["m1"].ID},
		{MetaID: ps["main-meta"].ID, FeederID: ps["m2"].ID},
		{MetaID: ps["meta-meta"].ID, FeederID: ps["main-meta"].ID},
		{MetaID: uuid.New(), FeederID: ps["m1"].ID},
	}

	all := make([]*Puzzle, 0, len(ps))
	for _, p := range ps {
		all = append(all, p)
	}

	return New(all, reqs, "intro", "meta-meta"), ps
}

func slugs(ps []*Puzzle) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Slug)
	}
	return out
}

func TestOrdering(t *testing.T) {
	c, _ := testCatalog()

	assert.Equal(t, []string{"i1", "i2", "m1", "m2", "main-meta", "meta-meta"}, slugs(c.Puzzles()))
	assert.Equal(t, []string{"i1", "i2", "m1", "m2", "main-meta", "meta-meta"}, slugs(c.DeepOrder()))
	assert.Equal(t, 6, c.Len())
	assert.Equal(t, 2, c.IntroCount())
}

func TestLookups(t *testing.T) {
	c, ps := testCatalog()

	p, ok := c.BySlug("m1")
	require.True(t, ok)
	assert.Equal(t, ps["m1"], p)

	p, ok = c.ByID(ps["m2"].ID)
	require.True(t, ok)
	assert.Equal(t, "m2", p.Slug)

	_, ok = c.BySlug("missing")
	assert.False(t, ok)

	mm, ok := c.MetaMeta()
	require.True(t, ok)
	assert.True(t, c.IsMetaMeta(mm))
	assert.True(t, c.IsIntro(ps["i1"]))
	assert.False(t, c.IsIntro(ps["m1"]))
}

func TestMetaGraph(t *testing.T) {
	c, ps := testCatalog()

	assert.Equal(t, []string{"m1", "m2"}, slugs(c.FeedersOf(ps["main-meta"])))
	assert.Equal(t, []string{"main-meta"}, slugs(c.MetasOf(ps["m1"])))
	assert.Equal(t, []string{"main-meta"}, slugs(c.FeedersOf(ps["meta-meta"])))
	assert.Empty(t, c.MetasOf(ps["i1"]))
}

func TestIsBacksolve(t *testing.T) {
	c, ps := testCatalog()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	solved := map[uuid.UUID]time.Time{
		ps["m1"].ID:        t0,
		ps["main-meta"].ID: t0.Add(time.Hour),
		ps["m2"].ID:        t0.Add(2 * time.Hour),
	}

	assert.False(t, c.IsBacksolve(ps["m1"], solved))
	assert.True(t, c.IsBacksolve(ps["m2"], solved))
	assert.False(t, c.IsBacksolve(ps["i1"], solved))
}

func TestMainRoundSolves(t *testing.T) {
	c, ps := testCatalog()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	global, local := c.MainRoundSolves(map[uuid.UUID]time.Time{
		ps["i1"].ID:        t0,
		ps["m1"].ID:        t0,
		ps["main-meta"].ID: t0,
	})

	assert.Equal(t, 1, global)
	assert.Equal(t, 1, local["intro"])
	assert.Equal(t, 1, local["main"])
}

func TestShortName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "The Final Countdown", want: "TFC"},
		{name: "Don't Panic", want: "DP"},
		{name: "Catch-22", want: "C-22"},
		{name: "A Very Long Puzzle Name Goes Here", want: "AVLP..."},
		{name: "Six Words In This Name", want: "SWITN"},
		{name: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Puzzle{Name: tt.name}
			assert.Equal(t, tt.want, p.ShortName())
		})
	}
}

func TestNormalizedAnswer(t *testing.T) {
	p := &Puzzle{Answer: "Sample Answer"}
	assert.Equal(t, "SAMPLEANSWER", p.NormalizedAnswer())
}
