package types

import "github.com/google/uuid"

type SolveRequest struct {
	// Checked after normalization; an empty guess is a validation error, not a wrong answer
	Answer string `json:"answer"`
}

type Hint struct {
	ID           uuid.UUID  `json:"id"`
	Puzzle       string     `json:"puzzle"`
	Team         string     `json:"team,omitempty"`
	IsFollowup   bool       `json:"is_followup"`
	Question     string     `json:"question"`
	NotifyEmails string     `json:"notify_emails"`
	Status       string     `json:"status"`
	Response     string     `json:"response"`
	Claimer      string     `json:"claimer,omitempty"`
	SubmittedAt  UnixMilli  `json:"submitted_at"`
	ClaimedAt    *UnixMilli `json:"claimed_at,omitempty"`
	AnsweredAt   *UnixMilli `json:"answered_at,omitempty"`
}

type HintThread struct {
	Hints                  []Hint `json:"hints"`
	CanFollowup            bool   `json:"can_followup"`
	RelevantHintsRemaining int    `json:"relevant_hints_remaining"`
	// Why a new request would be refused right now, empty if it would be accepted
	Error string `json:"error,omitempty"`
}

type StaffHints struct {
	Unclaimed int64  `json:"unclaimed"`
	Open      []Hint `json:"open"`
}

type RegisterResponse struct {
	TeamID   uuid.UUID `json:"team_id"`
	TeamName string    `json:"team_name"`
	// Basic auth password for the team, the username is TeamID. Only ever returned here.
	Token string `json:"token"`
}

// Who and what a staff shortcut acts on. Both are optional; shortcuts needing a missing one are
// not listed and cannot be run.
type ShortcutBinding struct {
	TeamID string `json:"team_id" query:"team_id"`
	Puzzle string `json:"puzzle"  query:"puzzle"`
}

type PingResponse struct {
	Status string    `json:"status" validate:"required"`
	TeamID uuid.UUID `json:"team_id,omitempty"`
}
