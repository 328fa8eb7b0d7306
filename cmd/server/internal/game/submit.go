package game

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/internal/answer"
	"github.com/puzzlehunt/huntserver/internal/audit"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

type SubmitStatus string

const (
	StatusCorrect   SubmitStatus = "correct"
	StatusIncorrect SubmitStatus = "incorrect"
	// a canned reply matched; nothing was recorded
	StatusMessage SubmitStatus = "message"
)

type SubmitResult struct {
	Status           SubmitStatus `json:"status"`
	Correct          bool         `json:"correct"`
	Answer           string       `json:"answer,omitempty"`
	Message          string       `json:"message"`
	GuessesRemaining int          `json:"guesses_remaining"`
}

// GuessesRemaining is the cap plus any granted extra guesses minus wrong guesses so far.
func (s *Service) GuessesRemaining(ctx context.Context, rc *requestctx.Context, p *catalog.Puzzle) (int, error) {
	team, err := requireTeam(rc)
	if err != nil {
		return 0, err
	}
	subs, err := rc.PuzzleSubmissions(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load submissions: %w", err)
	}
	wrong := 0
	for _, sub := range subs {
		if !sub.IsCorrect {
			wrong++
		}
	}
	extra, err := models.ExtraGuesses(ctx, s.db, team.ID, p.ID)
	if err != nil {
		return 0, err
	}
	return s.rules.MaxGuesses + extra - wrong, nil
}

// SubmitAnswer checks a guess and records it.
//
// Nothing is recorded when the puzzle is solved, the team is out of guesses, a canned reply matches,
// the guess normalizes to nothing or it was tried before. A correct guess obsoletes the team's open
// hints on the puzzle.
func (s *Service) SubmitAnswer(ctx context.Context, rc *requestctx.Context, slug string, raw string) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "SubmitAnswer")
	defer span.End()

	span.SetAttributes(attribute.String("puzzle.slug", slug))

	fail := func(err error) (*SubmitResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission rejected")
		return nil, err
	}

	team, err := requireTeam(rc)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("team.id", team.ID.String()))

	if rc.HuntIsClosed() {
		return fail(srverr.Policy(srverr.CodeHuntClosed, "Sorry, the hunt is closed."))
	}

	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		return fail(err)
	}

	solved, err := solvedAt(ctx, rc, p.ID)
	if err != nil {
		return fail(err)
	}
	if solved != nil {
		return fail(srverr.Policy(srverr.CodeAlreadySolved, "You've already solved this puzzle!"))
	}

	remaining, err := s.GuessesRemaining(ctx, rc, p)
	if err != nil {
		return fail(err)
	}
	if remaining <= 0 {
		return fail(srverr.Policy(srverr.CodeNoGuesses, "You have no more guesses for this puzzle!"))
	}

	msg, err := models.MatchPuzzleMessage(ctx, s.db, p.ID, raw)
	if err != nil {
		return fail(err)
	}
	if msg != nil {
		span.AddEvent("canned_message")
		span.SetStatus(codes.Ok, "canned message")
		return &SubmitResult{Status: StatusMessage, Message: msg.Response, GuessesRemaining: remaining}, nil
	}

	normalized := answer.Normalize(raw)
	if normalized == "" {
		return fail(srverr.Validation(
			"answer",
			"All puzzle answers will have at least one letter A through Z (case does not matter).",
		))
	}

	subs, err := rc.PuzzleSubmissions(ctx, p.ID)
	if err != nil {
		return fail(err)
	}
	for _, sub := range subs {
		if sub.SubmittedAnswer == normalized {
			return fail(srverr.Policy(
				srverr.CodeAlreadyTried,
				"You've already tried calling in the answer %q for this puzzle.",
				normalized,
			))
		}
	}

	correct := normalized == p.NormalizedAnswer()
	row := models.AnswerSubmission{
		TeamID:            team.ID,
		PuzzleID:          p.ID,
		SubmittedAnswer:   normalized,
		SubmittedDatetime: rc.Now(),
		IsCorrect:         correct,
	}

	var obsoleted []models.Hint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.InsertSubmission(ctx, tx, &row); err != nil {
			return err
		}
		if !correct {
			return nil
		}
		if !rc.HuntIsOver() {
			if err := models.SetLastSolveTime(ctx, tx, team.ID, rc.Now()); err != nil {
				return err
			}
		}
		var err error
		obsoleted, err = models.ObsoleteOpenHints(ctx, tx, team.ID, p.ID, rc.Now())
		return err
	})
	duplicate := models.IsDuplicate(err)
	if err != nil && !duplicate {
		return fail(fmt.Errorf("failed to record submission: %w", err))
	}

	result := &SubmitResult{Correct: correct, Answer: normalized, GuessesRemaining: remaining}
	if correct {
		result.Status = StatusCorrect
		result.Message = fmt.Sprintf("%s is correct!", p.Answer)
	} else {
		result.Status = StatusIncorrect
		result.Message = fmt.Sprintf("%s is incorrect.", normalized)
		result.GuessesRemaining--
	}

	if duplicate {
		// a concurrent request recorded the same guess and ran the side effects
		span.AddEvent("duplicate_submission")
		span.SetStatus(codes.Ok, "duplicate submission")
		return result, nil
	}

	rc.Forget()
	s.count(ctx, s.submissions, attribute.Bool("correct", correct))
	audit.LogAnswerSubmission(
		s.auditContext(team.ID, p.Slug),
		row.ID.String(),
		normalized,
		correct,
		result.GuessesRemaining,
	)
	s.alertSubmission(ctx, rc, team, p, normalized, correct)
	if correct {
		s.afterSolve(ctx, rc, team, p, obsoleted)
	}

	span.SetAttributes(attribute.Bool("correct", correct))
	span.SetStatus(codes.Ok, "recorded submission")
	return result, nil
}

// UseFreeAnswer solves a non-meta puzzle with one free answer credit.
func (s *Service) UseFreeAnswer(ctx context.Context, rc *requestctx.Context, slug string) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "UseFreeAnswer")
	defer span.End()

	span.SetAttributes(attribute.String("puzzle.slug", slug))

	fail := func(err error) (*SubmitResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "free answer rejected")
		return nil, err
	}

	team, err := requireTeam(rc)
	if err != nil {
		return fail(err)
	}
	if rc.HuntIsClosed() {
		return fail(srverr.Policy(srverr.CodeHuntClosed, "Sorry, the hunt is closed."))
	}

	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		return fail(err)
	}
	if p.IsMeta {
		return fail(srverr.Policy(srverr.CodeMetaFreeAnswer, "You can't use a free answer on a metapuzzle."))
	}

	solved, err := solvedAt(ctx, rc, p.ID)
	if err != nil {
		return fail(err)
	}
	if solved != nil {
		return fail(srverr.Policy(srverr.CodeAlreadySolved, "You've already solved this puzzle!"))
	}

	row := models.AnswerSubmission{
		TeamID:            team.ID,
		PuzzleID:          p.ID,
		SubmittedAnswer:   p.NormalizedAnswer(),
		SubmittedDatetime: rc.Now(),
		IsCorrect:         true,
		UsedFreeAnswer:    true,
	}

	var obsoleted []models.Hint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the balance is checked under the team row lock that hint conversions also take
		locked, err := models.LockTeam(ctx, tx, team.ID)
		if err != nil {
			return err
		}
		q, err := rc.InTx(tx, locked).Quota(ctx)
		if err != nil {
			return err
		}
		if q.FreeAnswersRemaining <= 0 {
			return srverr.Policy(srverr.CodeNoFreeAnswers, "You have no free answers to use.")
		}
		if err := models.InsertSubmission(ctx, tx, &row); err != nil {
			return err
		}
		obsoleted, err = models.ObsoleteOpenHints(ctx, tx, team.ID, p.ID, rc.Now())
		return err
	})
	result := &SubmitResult{Status: StatusCorrect, Correct: true, Answer: row.SubmittedAnswer, Message: "Free answer used!"}
	if models.IsDuplicate(err) {
		span.AddEvent("duplicate_submission")
		span.SetStatus(codes.Ok, "puzzle solved concurrently")
		return result, nil
	}
	if srverr.IsPolicy(err, srverr.CodeNoFreeAnswers) {
		return fail(err)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to record free answer: %w", err))
	}

	rc.Forget()
	s.count(ctx, s.submissions, attribute.Bool("correct", true), attribute.Bool("free", true))
	audit.LogFreeAnswerUsed(s.auditContext(team.ID, p.Slug), row.ID.String())
	s.notifier.Alert(ctx, notify.ChannelFreeAnswers, notify.FreeAnswerAlert(
		p.Emoji,
		team.TeamName,
		p.Name,
		s.hintLine(ctx, rc, p),
	))
	s.afterSolve(ctx, rc, team, p, obsoleted)

	span.SetStatus(codes.Ok, "used free answer")
	return result, nil
}

// afterSolve runs the notifications of a newly recorded solve and persists the unlocks it opened.
func (s *Service) afterSolve(
	ctx context.Context,
	rc *requestctx.Context,
	team *models.Team,
	p *catalog.Puzzle,
	obsoleted []models.Hint,
) {
	for _, h := range obsoleted {
		s.count(ctx, s.transitions, attribute.String("status", hints.Obsolete.String()))
		s.notifier.StaffHint(ctx, notify.HintUpdate{
			HintID:     h.ID,
			Cleared:    true,
			TeamName:   team.TeamName,
			PuzzleName: p.Name,
			Status:     hints.Obsolete.Label(),
		})
	}

	cat, err := rc.Catalog(ctx)
	if err != nil {
		logger.Logger.ErrorContext(ctx, "failed to load catalog after solve", "error", err)
		return
	}
	switch {
	case cat.IsMetaMeta(p):
		s.notifier.Notify(ctx, notify.HuntFinishedEvent(team.ID, s.rules.Title, rc.Now()))
		s.notifier.Alert(ctx, notify.ChannelVictory, notify.VictoryAlert(team.TeamName))
	case p.IsMeta:
		s.notifier.Notify(ctx, notify.MetaSolvedEvent(team.ID, p.Slug, p.Name, rc.Now()))
	}

	s.invalidateBoard(ctx)

	// the solve may have crossed thresholds; persist them now rather than on the next page view
	if _, err := rc.Unlocks(ctx); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to compute unlocks after solve", "error", err)
	}
}

func (s *Service) hintLine(ctx context.Context, rc *requestctx.Context, p *catalog.Puzzle) string {
	all, err := rc.Hints(ctx)
	if err != nil {
		logger.Logger.ErrorContext(ctx, "failed to load hints for alert", "error", err)
		return ""
	}
	var summary []notify.HintSummary
	for _, h := range all {
		if h.PuzzleID != p.ID {
			continue
		}
		hs := notify.HintSummary{Submitted: h.SubmittedDatetime, Status: h.Status.Label()}
		if h.AnsweredDatetime != nil {
			hs.Answered = *h.AnsweredDatetime
		}
		summary = append(summary, hs)
	}
	return notify.HintLine(rc.Now(), summary)
}

func (s *Service) alertSubmission(
	ctx context.Context,
	rc *requestctx.Context,
	team *models.Team,
	p *catalog.Puzzle,
	normalized string,
	correct bool,
) {
	place := 0
	if correct && !team.IsHidden {
		n, err := models.CountPublicSolves(ctx, s.db, p.ID)
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to count solves for alert", "error", err)
		}
		place = int(n)
	}
	s.notifier.Alert(ctx, notify.ChannelSubmissions, notify.SubmissionAlert(
		notify.PlaceSigil(correct, place),
		p.Emoji,
		team.TeamName,
		normalized,
		p.Name,
		correct,
		s.hintLine(ctx, rc, p),
	))
}
