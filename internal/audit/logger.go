package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/puzzlehunt/huntserver/internal/logger"
	"github.com/puzzlehunt/huntserver/internal/types"
)

// Audit lines are written here, one JSON object per line.
var Output io.Writer = os.Stdout

type Context struct {
	TeamID     *string
	PuzzleSlug *string
	Hunt       string
}

func emit[T any](c Context, evtType EventType, disp Disposition, payload T) {
	event := Event[T]{Event: payload}
	event.Type = evtType

	event.LogContext = logContext
	event.SchemaVersion = schemaVersion

	event.Timestamp = types.NewUnixMilli(time.Now())
	event.Hunt = c.Hunt
	event.TeamID = c.TeamID
	event.PuzzleSlug = c.PuzzleSlug

	event.Disposition = disp

	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error(
			"could not serialize audit event",
			"eventType", evtType,
			"teamID", c.TeamID,
			"puzzle", c.PuzzleSlug,
			"error", err,
		)
		return
	}

	fmt.Fprintln(Output, string(evtStr))
}

func LogTeamRegistered(c Context, teamName string, memberCount int) {
	emit(c, EvtTeamRegistered, DispositionNeutral, TeamRegisteredEvent{
		TeamName:    teamName,
		MemberCount: memberCount,
	})
}

func LogPuzzleUnlocked(c Context, unlockID string, unlockedAt time.Time, scheme string) {
	emit(c, EvtPuzzleUnlocked, DispositionNeutral, PuzzleUnlockedEvent{
		UnlockID:   unlockID,
		UnlockedAt: types.NewUnixMilli(unlockedAt),
		Scheme:     scheme,
	})
}

func LogAnswerSubmission(
	c Context,
	submissionID string,
	submittedAnswer string,
	isCorrect bool,
	guessesRemaining int,
) {
	disp := DispositionBad
	if isCorrect {
		disp = DispositionGood
	}
	emit(c, EvtAnswerSubmission, disp, AnswerSubmissionEvent{
		SubmissionID:     submissionID,
		SubmittedAnswer:  submittedAnswer,
		IsCorrect:        isCorrect,
		GuessesRemaining: guessesRemaining,
	})
}

func LogFreeAnswerUsed(c Context, submissionID string) {
	emit(c, EvtFreeAnswerUsed, DispositionNeutral, FreeAnswerUsedEvent{SubmissionID: submissionID})
}

func LogHintRequested(c Context, hintID string, isFollowup bool, convertedFreeAnswer bool) {
	emit(c, EvtHintRequested, DispositionNeutral, HintRequestedEvent{
		HintID:              hintID,
		IsFollowup:          isFollowup,
		ConvertedFreeAnswer: convertedFreeAnswer,
	})
}

func LogHintClaimed(c Context, hintID string, claimer string) {
	emit(c, EvtHintClaimed, DispositionNeutral, HintClaimedEvent{HintID: hintID, Claimer: claimer})
}

func LogHintResolved(c Context, hintID string, status string, responder string) {
	disp := DispositionNeutral
	switch status {
	case "ANSWERED":
		disp = DispositionGood
	case "REFUNDED":
		disp = DispositionBad
	}
	emit(c, EvtHintResolved, disp, HintResolvedEvent{
		HintID:    hintID,
		Status:    status,
		Responder: responder,
	})
}

func LogSurveySubmitted(c Context, fun int, difficulty int) {
	emit(c, EvtSurveySubmitted, DispositionNeutral, SurveySubmittedEvent{Fun: fun, Difficulty: difficulty})
}

func LogStaffShortcut(c Context, action string, staff string) {
	emit(c, EvtStaffShortcut, DispositionNeutral, StaffShortcutEvent{Action: action, Staff: staff})
}
