package unlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/internal/audit"
	"github.com/puzzlehunt/huntserver/internal/hunt"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

type Pending struct {
	PuzzleID uuid.UUID
	At       time.Time
}

// Stored is the durable row for a pending unlock. Inserted is false when another request got there first.
type Stored struct {
	ID       uuid.UUID
	At       time.Time
	Inserted bool
}

// Store inserts unlock rows with insert-or-ignore semantics and returns the row that won for every puzzle.
type Store interface {
	InsertUnlocks(ctx context.Context, teamID uuid.UUID, pending []Pending) (map[uuid.UUID]Stored, error)
}

type Engine struct {
	policy    Policy
	store     Store
	sink      notify.Sink
	huntTitle string
	persisted metric.Int64Counter
}

func NewEngine(policy Policy, store Store, sink notify.Sink, huntTitle string) *Engine {
	persisted, err := meter.Int64Counter(
		"huntserver.unlocks.persisted",
		metric.WithDescription("puzzle unlock rows created"),
	)
	if err != nil {
		logger.Logger.Error("failed to create unlock counter", "error", err)
	}
	return &Engine{
		policy:    policy,
		store:     store,
		sink:      sink,
		huntTitle: huntTitle,
		persisted: persisted,
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Compute returns the viewer's unlocked puzzles, persisting newly crossed ones first.
// Anonymous viewers and universal access never write.
func (e *Engine) Compute(
	ctx context.Context,
	cat *catalog.Catalog,
	v hunt.Viewer,
	st TeamState,
) (Set, error) {
	ctx, span := tracer.Start(ctx, "Engine.Compute")
	defer span.End()

	teamID := v.TeamID()
	span.SetAttributes(
		attribute.String("scheme", string(e.policy.Scheme())),
		attribute.String("team.id", teamID.String()),
	)

	candidates := e.policy.Candidates(cat, v, st)

	var pending []Pending
	if teamID != uuid.Nil && !hunt.UniversalAccess(v) {
		for _, c := range candidates {
			if !c.Stored {
				pending = append(pending, Pending{PuzzleID: c.Puzzle.ID, At: c.At})
			}
		}
	}

	var stored map[uuid.UUID]Stored
	if len(pending) > 0 {
		span.AddEvent("persisting_unlocks", trace.WithAttributes(attribute.Int("count", len(pending))))

		var err error
		stored, err = e.store.InsertUnlocks(ctx, teamID, pending)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to persist unlocks")
			return Set{}, fmt.Errorf("failed to persist unlocks: %w", err)
		}
	}

	unlocks := make([]Unlock, 0, len(candidates))
	for _, c := range candidates {
		at := c.At
		if row, ok := stored[c.Puzzle.ID]; ok {
			// a concurrent request may have stored an earlier timestamp
			at = row.At
			if row.Inserted {
				e.recordUnlock(ctx, teamID, c, row)
			}
		}
		unlocks = append(unlocks, Unlock{Puzzle: c.Puzzle, At: at})
	}

	span.SetAttributes(attribute.Int("unlocks", len(unlocks)))
	span.SetStatus(codes.Ok, "computed unlocks")
	return NewSet(unlocks), nil
}

func (e *Engine) recordUnlock(ctx context.Context, teamID uuid.UUID, c Candidate, row Stored) {
	scheme := string(e.policy.Scheme())
	if e.persisted != nil {
		e.persisted.Add(ctx, 1, metric.WithAttributes(attribute.String("scheme", scheme)))
	}

	team := teamID.String()
	slug := c.Puzzle.Slug
	audit.LogPuzzleUnlocked(
		audit.Context{TeamID: &team, PuzzleSlug: &slug, Hunt: e.huntTitle},
		row.ID.String(),
		row.At,
		scheme,
	)

	if c.Notify && row.At.Equal(c.At) {
		e.sink.Notify(ctx, notify.UnlockEvent(teamID, c.Puzzle.Slug, c.Puzzle.Name, row.At))
	}
}
