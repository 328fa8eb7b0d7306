// Package quota computes a team's hint and free answer balances and gates new hint requests.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/internal/hunt"
)

var tracer = otel.Tracer("github.com/puzzlehunt/huntserver/cmd/server/internal/quota")

// The parts of a team that feed the balance.
type Team struct {
	CreatedAt          time.Time
	StartOffset        time.Duration
	HintsAwarded       int
	FreeAnswersAwarded int
}

// One hint as far as the ledger cares, in submission order.
type Hint struct {
	PuzzleID   uuid.UUID
	IsIntro    bool
	Status     hints.Status
	IsFollowup bool
}

type Summary struct {
	HintsTotal             int `json:"hints_total"`
	HintsUsed              int `json:"hints_used"`
	HintsRemaining         int `json:"hints_remaining"`
	IntroHintsUsed         int `json:"intro_hints_used"`
	IntroHintsRemaining    int `json:"intro_hints_remaining"`
	NonIntroHintsRemaining int `json:"nonintro_hints_remaining"`
	FreeAnswersTotal       int `json:"free_answers_total"`
	FreeAnswersUsed        int `json:"free_answers_used"`
	FreeAnswersRemaining   int `json:"free_answers_remaining"`
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Compute recomputes both balances from the full hint history and the number of free answers spent.
func Compute(rules hunt.Rules, team Team, now time.Time, history []Hint, freeAnswersUsed int) Summary {
	var s Summary

	s.HintsTotal = rules.Total(rules.Hints, team.HintsAwarded, team.CreatedAt, team.StartOffset, now)
	introConsumed := 0
	for _, h := range history {
		if !hints.Consumes(h.Status, h.IsFollowup) {
			continue
		}
		s.HintsUsed++
		if h.IsIntro {
			introConsumed++
		}
	}
	s.HintsRemaining = nonNegative(s.HintsTotal - s.HintsUsed)

	s.IntroHintsUsed = min(rules.IntroHints, introConsumed)
	s.IntroHintsRemaining = nonNegative(min(s.HintsRemaining, rules.IntroHints-s.IntroHintsUsed))
	s.NonIntroHintsRemaining = s.HintsRemaining - s.IntroHintsRemaining

	s.FreeAnswersTotal = rules.Total(
		rules.FreeAnswers,
		team.FreeAnswersAwarded,
		team.CreatedAt,
		team.StartOffset,
		now,
	)
	s.FreeAnswersUsed = freeAnswersUsed
	s.FreeAnswersRemaining = nonNegative(s.FreeAnswersTotal - s.FreeAnswersUsed)

	return s
}

// Hints usable on a puzzle; intro puzzles may draw on the intro pool as well.
func (s Summary) RelevantHintsRemaining(isIntro bool) int {
	if isIntro {
		return s.HintsRemaining
	}
	return s.NonIntroHintsRemaining
}

type Request struct {
	PuzzleID   uuid.UUID
	IsIntro    bool
	IsFollowup bool
}

type Decision struct {
	// A free answer is spent to create the hint credit.
	ConvertFreeAnswer bool
}

// CanFollowup reports whether the latest hint on the puzzle has been answered.
func CanFollowup(history []Hint, puzzleID uuid.UUID) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].PuzzleID == puzzleID {
			return hints.CanFollowup(history[i].Status)
		}
	}
	return false
}

// Gate decides whether a new hint request may be filed.
//
// A followup to an answered thread neither consumes quota nor waits for an open hint.
func Gate(
	ctx context.Context,
	rules hunt.Rules,
	v hunt.Viewer,
	s Summary,
	history []Hint,
	req Request,
) (Decision, error) {
	_, span := tracer.Start(ctx, "Gate")
	defer span.End()

	span.SetAttributes(
		attribute.String("puzzle.id", req.PuzzleID.String()),
		attribute.Bool("followup", req.IsFollowup),
	)

	deny := func(err error) (Decision, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hint request denied")
		return Decision{}, err
	}

	if v.HuntIsOver() {
		return deny(srverr.Policy(srverr.CodeHuntClosed, "Sorry, hints are closed."))
	}

	if req.IsFollowup {
		if !CanFollowup(history, req.PuzzleID) {
			return deny(srverr.Policy(
				srverr.CodeCannotFollowup,
				"You can only follow up on a hint that has been answered.",
			))
		}
		span.SetStatus(codes.Ok, "followup allowed")
		return Decision{}, nil
	}

	relevant := s.RelevantHintsRemaining(req.IsIntro)
	if s.HintsRemaining <= 0 && s.FreeAnswersRemaining <= 0 {
		return deny(srverr.Policy(srverr.CodeNoHints, "You have no hints available!"))
	}
	if relevant <= 0 && s.FreeAnswersRemaining <= 0 {
		return deny(srverr.Policy(
			srverr.CodeNoHints,
			"You have no hints that can be used on this puzzle.",
		))
	}

	if rules.OneHintAtATime {
		for _, h := range history {
			if h.Status == hints.NoResponse {
				span.AddEvent("open_hint_found")
				return deny(srverr.Policy(
					srverr.CodeHintOpen,
					"You already have a hint open! You can have one hint open at a time.",
				))
			}
		}
	}

	d := Decision{ConvertFreeAnswer: relevant <= 0}
	if d.ConvertFreeAnswer {
		span.AddEvent("converting_free_answer")
	}
	span.SetStatus(codes.Ok, "hint request allowed")
	return d, nil
}
