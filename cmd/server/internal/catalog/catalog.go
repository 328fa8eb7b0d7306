// Package catalog is the ordered, read-only set of rounds and puzzles a request works against.
package catalog

import (
	"sort"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/puzzlehunt/huntserver/internal/answer"
)

type Round struct {
	ID    uuid.UUID
	Slug  string
	Name  string
	Order int
}

// A negative unlock threshold disables that path.
type Puzzle struct {
	ID            uuid.UUID
	Slug          string
	Name          string
	Answer        string
	Emoji         string
	Round         *Round
	Order         int
	IsMeta        bool
	UnlockHours   int
	UnlockGlobal  int
	UnlockLocal   int
	DeepThreshold int
}

func (p *Puzzle) NormalizedAnswer() string {
	return answer.Normalize(p.Answer)
}

// ShortName abbreviates a puzzle name to its initials, keeping punctuation and digits.
func (p *Puzzle) ShortName() string {
	var ret []rune
	lastAlpha := false
	for _, c := range p.Name {
		switch {
		case unicode.IsLetter(c):
			if !lastAlpha {
				ret = append(ret, c)
			}
			lastAlpha = true
		case c != '\'':
			if c != ' ' {
				ret = append(ret, c)
			}
			lastAlpha = false
		}
	}
	if len(ret) >= 7 {
		return string(ret[:4]) + "..."
	}
	return string(ret)
}

// A feeder puzzle whose answer is needed by a meta.
type Requirement struct {
	MetaID   uuid.UUID
	FeederID uuid.UUID
}

type Catalog struct {
	puzzles      []*Puzzle
	deepOrder    []*Puzzle
	bySlug       map[string]*Puzzle
	byID         map[uuid.UUID]*Puzzle
	feeders      map[uuid.UUID][]*Puzzle
	metas        map[uuid.UUID][]*Puzzle
	introSlug    string
	metaMetaSlug string
}

// New orders puzzles by round order, then puzzle order, then slug.
//
// Requirements referring to unknown puzzles are ignored.
func New(puzzles []*Puzzle, requirements []Requirement, introSlug string, metaMetaSlug string) *Catalog {
	c := &Catalog{
		puzzles:      append([]*Puzzle(nil), puzzles...),
		bySlug:       make(map[string]*Puzzle, len(puzzles)),
		byID:         make(map[uuid.UUID]*Puzzle, len(puzzles)),
		feeders:      make(map[uuid.UUID][]*Puzzle),
		metas:        make(map[uuid.UUID][]*Puzzle),
		introSlug:    introSlug,
		metaMetaSlug: metaMetaSlug,
	}

	sort.SliceStable(c.puzzles, func(i, j int) bool {
		a, b := c.puzzles[i], c.puzzles[j]
		if ra, rb := roundOrder(a), roundOrder(b); ra != rb {
			return ra < rb
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Slug < b.Slug
	})

	for _, p := range c.puzzles {
		c.bySlug[p.Slug] = p
		c.byID[p.ID] = p
	}

	c.deepOrder = append([]*Puzzle(nil), c.puzzles...)
	sort.SliceStable(c.deepOrder, func(i, j int) bool {
		return c.deepOrder[i].DeepThreshold < c.deepOrder[j].DeepThreshold
	})

	for _, r := range requirements {
		meta, ok := c.byID[r.MetaID]
		if !ok {
			continue
		}
		feeder, ok := c.byID[r.FeederID]
		if !ok {
			continue
		}
		c.feeders[meta.ID] = append(c.feeders[meta.ID], feeder)
		c.metas[feeder.ID] = append(c.metas[feeder.ID], meta)
	}

	return c
}

func roundOrder(p *Puzzle) int {
	if p.Round == nil {
		return 0
	}
	return p.Round.Order
}

// Puzzles in round/order sequence.
func (c *Catalog) Puzzles() []*Puzzle {
	return c.puzzles
}

// Puzzles by non-decreasing DEEP threshold.
func (c *Catalog) DeepOrder() []*Puzzle {
	return c.deepOrder
}

func (c *Catalog) Len() int {
	return len(c.puzzles)
}

func (c *Catalog) BySlug(slug string) (*Puzzle, bool) {
	p, ok := c.bySlug[slug]
	return p, ok
}

func (c *Catalog) ByID(id uuid.UUID) (*Puzzle, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) IsIntro(p *Puzzle) bool {
	return p.Round != nil && p.Round.Slug == c.introSlug
}

func (c *Catalog) IsMetaMeta(p *Puzzle) bool {
	return p.Slug == c.metaMetaSlug
}

func (c *Catalog) MetaMeta() (*Puzzle, bool) {
	return c.BySlug(c.metaMetaSlug)
}

// Metas that need the answer to p.
func (c *Catalog) MetasOf(p *Puzzle) []*Puzzle {
	return c.metas[p.ID]
}

// Feeders whose answers meta needs.
func (c *Catalog) FeedersOf(meta *Puzzle) []*Puzzle {
	return c.feeders[meta.ID]
}

func (c *Catalog) IntroCount() int {
	n := 0
	for _, p := range c.puzzles {
		if c.IsIntro(p) {
			n++
		}
	}
	return n
}

// IsBacksolve reports whether p was solved after a meta that needs it.
func (c *Catalog) IsBacksolve(p *Puzzle, solvedAt map[uuid.UUID]time.Time) bool {
	own, ok := solvedAt[p.ID]
	if !ok {
		return false
	}
	for _, meta := range c.metas[p.ID] {
		if metaAt, ok := solvedAt[meta.ID]; ok && metaAt.Before(own) {
			return true
		}
	}
	return false
}

// MainRoundSolves counts solved non-meta puzzles per round slug, and globally outside the intro round.
func (c *Catalog) MainRoundSolves(solved map[uuid.UUID]time.Time) (int, map[string]int) {
	global := 0
	local := make(map[string]int)
	for id := range solved {
		p, ok := c.byID[id]
		if !ok || p.IsMeta {
			continue
		}
		local[RoundSlug(p)]++
		if c.IsIntro(p) {
			continue
		}
		global++
	}
	return global, local
}

// RoundSlug returns the round slug or "" for an unassigned puzzle.
func RoundSlug(p *Puzzle) string {
	if p.Round == nil {
		return ""
	}
	return p.Round.Slug
}
