// Package requestctx holds the state one request derives about its team, computed at most once.
package requestctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/quota"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"

var tracer = otel.Tracer(name)

// Source reads the rows a request derives its state from.
type Source interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
	Submissions(ctx context.Context, teamID uuid.UUID) ([]models.AnswerSubmission, error)
	Unlocks(ctx context.Context, teamID uuid.UUID) (map[uuid.UUID]time.Time, error)
	Hints(ctx context.Context, teamID uuid.UUID) ([]models.Hint, error)
}

// Computer is the unlock engine as seen by a request.
type Computer interface {
	Compute(ctx context.Context, cat *catalog.Catalog, v hunt.Viewer, st unlock.TeamState) (unlock.Set, error)
}

type DBSource struct {
	DB           *gorm.DB
	IntroSlug    string
	MetaMetaSlug string
}

var _ Source = DBSource{}

func (s DBSource) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return models.LoadCatalog(ctx, s.DB, s.IntroSlug, s.MetaMetaSlug)
}

func (s DBSource) Submissions(ctx context.Context, teamID uuid.UUID) ([]models.AnswerSubmission, error) {
	return models.TeamSubmissions(ctx, s.DB, teamID)
}

func (s DBSource) Unlocks(ctx context.Context, teamID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return models.TeamUnlocks(ctx, s.DB, teamID)
}

func (s DBSource) Hints(ctx context.Context, teamID uuid.UUID) ([]models.Hint, error) {
	return models.TeamHints(ctx, s.DB, teamID)
}

// Sources that can read through a transaction instead.
type TxSource interface {
	WithTx(tx *gorm.DB) Source
}

func (s DBSource) WithTx(tx *gorm.DB) Source {
	s.DB = tx
	return s
}

// Factory builds one Context per request.
type Factory struct {
	Rules    hunt.Rules
	Source   Source
	Computer Computer
}

func (f *Factory) New(team *models.Team, now time.Time) *Context {
	return &Context{
		rules:  f.Rules,
		team:   team,
		now:    now,
		source: f.Source,
		engine: f.Computer,
	}
}

// Context is the per-request view of a team. Team is nil for anonymous visitors.
//
// Each derived field is loaded on first use and kept for the rest of the request. A Context is
// not safe for concurrent use; a request owns exactly one.
type Context struct {
	rules  hunt.Rules
	team   *models.Team
	now    time.Time
	source Source
	engine Computer

	catalog *catalog.Catalog

	submissions     []models.AnswerSubmission
	haveSubmissions bool

	unlocks     unlock.Set
	haveUnlocks bool

	hints     []models.Hint
	haveHints bool

	quota     quota.Summary
	haveQuota bool
}

var _ hunt.Viewer = (*Context)(nil)

func (c *Context) Now() time.Time {
	return c.now
}

func (c *Context) TeamID() uuid.UUID {
	if c.team == nil {
		return uuid.Nil
	}
	return c.team.ID
}

func (c *Context) IsPrerelease() bool {
	return c.team != nil && c.team.IsPrereleaseTestsolver
}

func (c *Context) StartTime() time.Time {
	if c.team == nil {
		return c.rules.Start
	}
	return c.rules.StartFor(c.team.StartOffset)
}

func (c *Context) HuntIsOver() bool {
	return c.rules.IsOver(c.now)
}

func (c *Context) HuntIsClosed() bool {
	return c.rules.IsClosed(c.now)
}

func (c *Context) Team() *models.Team {
	return c.team
}

func (c *Context) Rules() hunt.Rules {
	return c.rules
}

func (c *Context) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	cat, err := c.source.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	c.catalog = cat
	return cat, nil
}

// Every submission of the team, newest first.
func (c *Context) Submissions(ctx context.Context) ([]models.AnswerSubmission, error) {
	if c.haveSubmissions || c.team == nil {
		return c.submissions, nil
	}
	rows, err := c.source.Submissions(ctx, c.team.ID)
	if err != nil {
		return nil, err
	}
	c.submissions, c.haveSubmissions = rows, true
	return rows, nil
}

// Solve time per puzzle, free answers included.
func (c *Context) Solves(ctx context.Context) (map[uuid.UUID]time.Time, error) {
	rows, err := c.Submissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]time.Time)
	for _, s := range rows {
		if s.IsCorrect {
			out[s.PuzzleID] = s.SubmittedDatetime
		}
	}
	return out, nil
}

// Guesses on one puzzle, newest first.
func (c *Context) PuzzleSubmissions(ctx context.Context, puzzleID uuid.UUID) ([]models.AnswerSubmission, error) {
	rows, err := c.Submissions(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.AnswerSubmission
	for _, s := range rows {
		if s.PuzzleID == puzzleID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Unlocks runs the unlock engine, which may persist newly crossed unlocks.
func (c *Context) Unlocks(ctx context.Context) (unlock.Set, error) {
	if c.haveUnlocks {
		return c.unlocks, nil
	}

	ctx, span := tracer.Start(ctx, "Context.Unlocks")
	defer span.End()

	span.SetAttributes(attribute.String("team.id", c.TeamID().String()))

	cat, err := c.Catalog(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load catalog")
		return unlock.Set{}, fmt.Errorf("failed to load catalog: %w", err)
	}

	st := unlock.TeamState{}
	if c.team != nil {
		st.Solves, err = c.Solves(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load solves")
			return unlock.Set{}, fmt.Errorf("failed to load solves: %w", err)
		}
		st.Existing, err = c.source.Unlocks(ctx, c.team.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load unlocks")
			return unlock.Set{}, fmt.Errorf("failed to load unlocks: %w", err)
		}
	}

	set, err := c.engine.Compute(ctx, cat, c, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compute unlocks")
		return unlock.Set{}, err
	}
	c.unlocks, c.haveUnlocks = set, true

	span.SetAttributes(attribute.Int("unlocks", set.Len()))
	span.SetStatus(codes.Ok, "computed unlocks")
	return set, nil
}

// Deep is the team's progress under the DEEP scheme.
func (c *Context) Deep(ctx context.Context) (int, error) {
	solves := map[uuid.UUID]time.Time{}
	if c.team != nil {
		var err error
		if solves, err = c.Solves(ctx); err != nil {
			return 0, err
		}
	}
	return unlock.Deep{}.Progress(c, unlock.TeamState{Solves: solves}), nil
}

// Hints of the team, oldest first.
func (c *Context) Hints(ctx context.Context) ([]models.Hint, error) {
	if c.haveHints || c.team == nil {
		return c.hints, nil
	}
	rows, err := c.source.Hints(ctx, c.team.ID)
	if err != nil {
		return nil, err
	}
	c.hints, c.haveHints = rows, true
	return rows, nil
}

// HintHistory is the hint list in the shape the quota ledger reads.
func (c *Context) HintHistory(ctx context.Context) ([]quota.Hint, error) {
	rows, err := c.Hints(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]quota.Hint, 0, len(rows))
	for _, h := range rows {
		intro := false
		if p, ok := cat.ByID(h.PuzzleID); ok {
			intro = cat.IsIntro(p)
		}
		out = append(out, quota.Hint{
			PuzzleID:   h.PuzzleID,
			IsIntro:    intro,
			Status:     h.Status,
			IsFollowup: h.IsFollowup,
		})
	}
	return out, nil
}

// Quota is the team's hint and free answer balance. Anonymous visitors have none.
func (c *Context) Quota(ctx context.Context) (quota.Summary, error) {
	if c.haveQuota || c.team == nil {
		return c.quota, nil
	}

	history, err := c.HintHistory(ctx)
	if err != nil {
		return quota.Summary{}, fmt.Errorf("failed to load hint history: %w", err)
	}
	subs, err := c.Submissions(ctx)
	if err != nil {
		return quota.Summary{}, fmt.Errorf("failed to load submissions: %w", err)
	}
	free := 0
	for _, s := range subs {
		if s.UsedFreeAnswer {
			free++
		}
	}

	c.quota = quota.Compute(c.rules, quota.Team{
		CreatedAt:          c.team.CreationTime,
		StartOffset:        c.team.StartOffset,
		HintsAwarded:       c.team.TotalHintsAwarded,
		FreeAnswersAwarded: c.team.TotalFreeAnswersAwarded,
	}, c.now, history, free)
	c.haveQuota = true
	return c.quota, nil
}

// Forget drops everything derived from the team's rows after the request changed them.
// Only the catalog stays.
func (c *Context) Forget() {
	c.submissions, c.haveSubmissions = nil, false
	c.unlocks, c.haveUnlocks = unlock.Set{}, false
	c.hints, c.haveHints = nil, false
	c.quota, c.haveQuota = quota.Summary{}, false
}

// InTx is a Context for team, typically just locked, whose team rows are read again through tx.
// The catalog and the unlock set carry over.
func (c *Context) InTx(tx *gorm.DB, team *models.Team) *Context {
	src := c.source
	if ts, ok := src.(TxSource); ok {
		src = ts.WithTx(tx)
	}
	return &Context{
		rules:       c.rules,
		team:        team,
		now:         c.now,
		source:      src,
		engine:      c.engine,
		catalog:     c.catalog,
		unlocks:     c.unlocks,
		haveUnlocks: c.haveUnlocks,
	}
}

// Reload swaps in a fresh team row, e.g. after its counters changed.
func (c *Context) Reload(team *models.Team) {
	c.team = team
	c.Forget()
}
