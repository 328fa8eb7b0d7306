// Package game is what handlers call: every team and staff operation of the hunt, with its side
// effects on the ledgers and its notifications made explicit.
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/leaderboard"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/internal/audit"
	"github.com/puzzlehunt/huntserver/internal/hunt"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Notifier

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/game"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

// Notifier is every outbound channel an operation may use. None of them can fail the caller.
type Notifier interface {
	notify.Sink
	StaffHint(ctx context.Context, update notify.HintUpdate)
	Mail(ctx context.Context, m notify.Mail)
	Alert(ctx context.Context, channel notify.Channel, message string)
}

var _ Notifier = (*notify.Dispatcher)(nil)

var ErrNoTeam = srverr.Validation("team", "You must be on a team to do that.")

type Service struct {
	db       *gorm.DB
	rules    hunt.Rules
	notifier Notifier
	board    *leaderboard.Cache
	// base URL for links in mail
	domain string

	submissions metric.Int64Counter
	transitions metric.Int64Counter
}

func New(db *gorm.DB, rules hunt.Rules, notifier Notifier, board *leaderboard.Cache, domain string) *Service {
	submissions, err := meter.Int64Counter(
		"huntserver.submissions",
		metric.WithDescription("answer submissions recorded"),
	)
	if err != nil {
		logger.Logger.Error("failed to create submission counter", "error", err)
	}
	transitions, err := meter.Int64Counter(
		"huntserver.hints.transitions",
		metric.WithDescription("hint status transitions"),
	)
	if err != nil {
		logger.Logger.Error("failed to create hint transition counter", "error", err)
	}

	return &Service{
		db:          db,
		rules:       rules,
		notifier:    notifier,
		board:       board,
		domain:      domain,
		submissions: submissions,
		transitions: transitions,
	}
}

func (s *Service) Rules() hunt.Rules {
	return s.rules
}

func (s *Service) count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (s *Service) auditContext(teamID uuid.UUID, slug string) audit.Context {
	c := audit.Context{Hunt: s.rules.Title}
	if teamID != uuid.Nil {
		team := teamID.String()
		c.TeamID = &team
	}
	if slug != "" {
		c.PuzzleSlug = &slug
	}
	return c
}

// unlockedPuzzle resolves slug to a puzzle the team can currently see.
func unlockedPuzzle(ctx context.Context, rc *requestctx.Context, slug string) (*catalog.Puzzle, error) {
	cat, err := rc.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	p, ok := cat.BySlug(slug)
	if !ok {
		return nil, srverr.ErrNotFound
	}

	unlocks, err := rc.Unlocks(ctx)
	if err != nil {
		return nil, err
	}
	if !unlocks.Contains(p.ID) {
		return nil, srverr.Policy(srverr.CodeNotUnlocked, "You haven't unlocked this puzzle yet.")
	}
	return p, nil
}

// solvedAt reports the team's correct submission on a puzzle, if any.
func solvedAt(ctx context.Context, rc *requestctx.Context, puzzleID uuid.UUID) (*models.AnswerSubmission, error) {
	subs, err := rc.PuzzleSubmissions(ctx, puzzleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	for i := range subs {
		if subs[i].IsCorrect {
			return &subs[i], nil
		}
	}
	return nil, nil
}

func requireTeam(rc *requestctx.Context) (*models.Team, error) {
	team := rc.Team()
	if team == nil {
		return nil, ErrNoTeam
	}
	return team, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
