package audit

import (
	"github.com/puzzlehunt/huntserver/internal/types"
)

var schemaVersion = "1.0.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type EventType string

const (
	EvtTeamRegistered   EventType = "team_registered"
	EvtPuzzleUnlocked   EventType = "puzzle_unlocked"
	EvtAnswerSubmission EventType = "answer_submission"
	EvtFreeAnswerUsed   EventType = "free_answer_used"
	EvtHintRequested    EventType = "hint_requested"
	EvtHintClaimed      EventType = "hint_claimed"
	EvtHintResolved     EventType = "hint_resolved"
	EvtSurveySubmitted  EventType = "survey_submitted"
	EvtStaffShortcut    EventType = "staff_shortcut"
)

type Message struct {
	TeamID        *string     `json:"team_id"`
	PuzzleSlug    *string     `json:"puzzle_slug"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Hunt          string      `json:"hunt"        validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Type          EventType   `json:"event_type"  validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type TeamRegisteredEvent struct {
	TeamName    string `json:"team_name"    validate:"required"`
	MemberCount int    `json:"member_count"`
}

type PuzzleUnlockedEvent struct {
	UnlockID   string          `json:"unlock_id"   validate:"required"`
	UnlockedAt types.UnixMilli `json:"unlocked_at" validate:"required"`
	Scheme     string          `json:"scheme"      validate:"required"`
}

type AnswerSubmissionEvent struct {
	SubmissionID     string `json:"submission_id"     validate:"required"`
	SubmittedAnswer  string `json:"submitted_answer"  validate:"required"`
	IsCorrect        bool   `json:"is_correct"`
	GuessesRemaining int    `json:"guesses_remaining"`
}

type FreeAnswerUsedEvent struct {
	SubmissionID string `json:"submission_id" validate:"required"`
}

type HintRequestedEvent struct {
	HintID              string `json:"hint_id"               validate:"required"`
	IsFollowup          bool   `json:"is_followup"`
	ConvertedFreeAnswer bool   `json:"converted_free_answer"`
}

type HintClaimedEvent struct {
	HintID  string `json:"hint_id" validate:"required"`
	Claimer string `json:"claimer" validate:"required"`
}

type HintResolvedEvent struct {
	HintID    string `json:"hint_id"    validate:"required"`
	Status    string `json:"status"     validate:"required"`
	Responder string `json:"responder"`
}

type SurveySubmittedEvent struct {
	Fun        int `json:"fun"`
	Difficulty int `json:"difficulty"`
}

type StaffShortcutEvent struct {
	Action string `json:"action" validate:"required"`
	Staff  string `json:"staff"  validate:"required"`
}

type Event[T any] struct {
	Event T `json:"event" validate:"required"`
	Message
}
