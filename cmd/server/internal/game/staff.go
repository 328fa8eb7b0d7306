package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/shortcuts"
	"github.com/puzzlehunt/huntserver/internal/audit"
)

const (
	hintsColumn       = "total_hints_awarded"
	freeAnswersColumn = "total_free_answers_awarded"
)

// Shortcuts builds the staff menu for this hunt. Hint and free answer entries only exist when the
// hunt has them.
func (s *Service) Shortcuts() *shortcuts.Registry {
	team := []shortcuts.Param{shortcuts.ParamTeam}
	teamNow := []shortcuts.Param{shortcuts.ParamTeam, shortcuts.ParamNow}
	puzzleTeam := []shortcuts.Param{shortcuts.ParamPuzzle, shortcuts.ParamTeam}
	puzzleTeamNow := []shortcuts.Param{shortcuts.ParamPuzzle, shortcuts.ParamTeam, shortcuts.ParamNow}

	entries := []shortcuts.Entry{
		{Name: "prerelease_testsolver", Label: "Toggle testsolver", Params: team, Run: s.togglePrerelease},
		shortcuts.Heading("", team...),
		{Name: "set_offset_to_start_now", Label: "Offset to start now", Params: teamNow, Run: s.startNow},
	}
	if s.rules.Hints.Enabled {
		entries = append(entries,
			shortcuts.Heading("Hints (my team)", team...),
			shortcuts.Entry{Name: "hint_1", Label: "+1", Params: team, Run: s.adjustHints(1)},
			shortcuts.Entry{Name: "hint_5", Label: "+5", Params: team, Run: s.adjustHints(5)},
			shortcuts.Entry{Name: "hint_0", Label: "=0", Params: team, Run: s.zeroHints},
			shortcuts.Entry{Name: "reset_hints", Label: "Reset", Params: team, Run: s.resetAward(hintsColumn)},
		)
	}
	if s.rules.FreeAnswers.Enabled {
		entries = append(entries,
			shortcuts.Heading("Free answers (my team)", team...),
			shortcuts.Entry{Name: "free_answer_1", Label: "+1", Params: team, Run: s.adjustFreeAnswers(1)},
			shortcuts.Entry{Name: "free_answer_5", Label: "+5", Params: team, Run: s.adjustFreeAnswers(5)},
			shortcuts.Entry{Name: "free_answer_0", Label: "=0", Params: team, Run: s.zeroFreeAnswers},
			shortcuts.Entry{Name: "reset_free_answers", Label: "Reset", Params: team, Run: s.resetAward(freeAnswersColumn)},
		)
	}
	entries = append(entries,
		shortcuts.Heading("Submit answer (this puzzle)", puzzleTeam...),
		shortcuts.Entry{Name: "solve", Label: "Solve", Params: puzzleTeamNow, Run: s.forceSolve(false)},
		shortcuts.Entry{Name: "free_answer", Label: "Free", Params: puzzleTeamNow, Run: s.forceSolve(true)},
		shortcuts.Entry{Name: "unsolve", Label: "Unsolve", Params: puzzleTeam, Run: s.unsolve},

		shortcuts.Heading("Request hint (this puzzle)", puzzleTeam...),
		shortcuts.Entry{Name: "unanswered_hint", Label: "Unanswered", Params: puzzleTeamNow, Run: s.fakeHint(false)},
		shortcuts.Entry{Name: "answered_hint", Label: "Answered", Params: puzzleTeamNow, Run: s.fakeHint(true)},

		shortcuts.Heading("Guesses (my team, this puzzle)", puzzleTeam...),
		shortcuts.Entry{Name: "guess_1", Label: "+1", Params: puzzleTeam, Run: s.grantGuesses(1)},
		shortcuts.Entry{Name: "guess_5", Label: "+5", Params: puzzleTeam, Run: s.grantGuesses(5)},
		shortcuts.Entry{Name: "guess_0", Label: "=0", Params: puzzleTeam, Run: s.zeroGuesses},
		shortcuts.Entry{Name: "reset_guesses", Label: "Reset", Params: puzzleTeam, Run: s.resetGuesses},

		shortcuts.Heading("Delete all (my team, this puzzle)", puzzleTeam...),
		shortcuts.Entry{Name: "delete_hints", Label: "Hints", Params: puzzleTeam, Danger: true, Run: s.deleteHints},
		shortcuts.Entry{Name: "delete_guesses", Label: "Guesses", Params: puzzleTeam, Danger: true, Run: s.deleteGuesses},
	)
	return shortcuts.New(entries...)
}

// RunShortcut dispatches one shortcut on behalf of a staff member and records it.
func (s *Service) RunShortcut(ctx context.Context, registry *shortcuts.Registry, action string, b shortcuts.Binding, staff string) error {
	if err := registry.Dispatch(ctx, action, b); err != nil {
		return err
	}

	teamID, slug := uuid.Nil, ""
	if b.Team != nil {
		teamID = b.Team.TeamID()
		b.Team.Forget()
	}
	if b.Puzzle != nil {
		slug = b.Puzzle.Slug
	}
	audit.LogStaffShortcut(s.auditContext(teamID, slug), action, staff)
	s.invalidateBoard(ctx)
	return nil
}

func (s *Service) togglePrerelease(ctx context.Context, b shortcuts.Binding) error {
	_, err := models.TogglePrerelease(ctx, s.db, b.Team.TeamID())
	return err
}

func (s *Service) startNow(ctx context.Context, b shortcuts.Binding) error {
	return models.SetStartOffset(ctx, s.db, b.Team.TeamID(), s.rules.Start.Sub(b.Now))
}

func (s *Service) adjustHints(n int) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		id := b.Team.TeamID()
		_, err := models.AdjustAwards(ctx, s.db, &id, n, 0)
		return err
	}
}

func (s *Service) adjustFreeAnswers(n int) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		id := b.Team.TeamID()
		_, err := models.AdjustAwards(ctx, s.db, &id, 0, n)
		return err
	}
}

// =0 takes away whatever the team has left.
func (s *Service) zeroHints(ctx context.Context, b shortcuts.Binding) error {
	q, err := b.Team.Quota(ctx)
	if err != nil {
		return err
	}
	id := b.Team.TeamID()
	_, err = models.AdjustAwards(ctx, s.db, &id, -q.HintsRemaining, 0)
	return err
}

func (s *Service) zeroFreeAnswers(ctx context.Context, b shortcuts.Binding) error {
	q, err := b.Team.Quota(ctx)
	if err != nil {
		return err
	}
	id := b.Team.TeamID()
	_, err = models.AdjustAwards(ctx, s.db, &id, 0, -q.FreeAnswersRemaining)
	return err
}

func (s *Service) resetAward(column string) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		return models.SetAward(ctx, s.db, b.Team.TeamID(), column, 0)
	}
}

// forceSolve replaces any correct submission with a fresh one, free or not.
func (s *Service) forceSolve(free bool) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		teamID := b.Team.TeamID()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := models.DeleteSubmissions(ctx, tx, teamID, b.Puzzle.ID, true); err != nil {
				return err
			}
			// a wrong guess with the same text cannot exist, it would have been correct
			err := models.InsertSubmission(ctx, tx, &models.AnswerSubmission{
				TeamID:            teamID,
				PuzzleID:          b.Puzzle.ID,
				SubmittedAnswer:   b.Puzzle.NormalizedAnswer(),
				SubmittedDatetime: b.Now,
				IsCorrect:         true,
				UsedFreeAnswer:    free,
			})
			if err != nil {
				return err
			}
			if free {
				return nil
			}
			return models.SetLastSolveTime(ctx, tx, teamID, b.Now)
		})
	}
}

func (s *Service) unsolve(ctx context.Context, b shortcuts.Binding) error {
	_, err := models.DeleteSubmissions(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID, true)
	return err
}

func (s *Service) fakeHint(answered bool) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		h := &models.Hint{
			TeamID:            b.Team.TeamID(),
			PuzzleID:          b.Puzzle.ID,
			HintQuestion:      "Halp",
			NotifyEmails:      NotifyNone,
			SubmittedDatetime: b.Now,
			Status:            hints.NoResponse,
		}
		if err := models.CreateHint(ctx, s.db, h); err != nil {
			return err
		}
		if !answered {
			return nil
		}
		_, ok, err := models.ResolveHint(ctx, s.db, h.ID, models.Resolution{
			Expected:  hints.NoResponse,
			Status:    hints.Answered,
			Response:  "Ok",
			Responder: "shortcut",
			At:        b.Now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return srverr.Policy(srverr.CodeStatusChanged, "Hint %s changed before it could be answered.", h.ID)
		}
		return nil
	}
}

func (s *Service) grantGuesses(n int) shortcuts.Action {
	return func(ctx context.Context, b shortcuts.Binding) error {
		return models.GrantExtraGuesses(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID, n, false)
	}
}

func (s *Service) zeroGuesses(ctx context.Context, b shortcuts.Binding) error {
	remaining, err := s.GuessesRemaining(ctx, b.Team, b.Puzzle)
	if err != nil {
		return fmt.Errorf("failed to count guesses: %w", err)
	}
	return models.GrantExtraGuesses(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID, -remaining, false)
}

func (s *Service) resetGuesses(ctx context.Context, b shortcuts.Binding) error {
	return models.DeleteExtraGuesses(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID)
}

func (s *Service) deleteHints(ctx context.Context, b shortcuts.Binding) error {
	_, err := models.DeleteHints(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID)
	return err
}

func (s *Service) deleteGuesses(ctx context.Context, b shortcuts.Binding) error {
	_, err := models.DeleteSubmissions(ctx, s.db, b.Team.TeamID(), b.Puzzle.ID, false)
	return err
}
