// Package error holds the error taxonomy shared by the server's domain packages and handlers.
//
// Malformed input is a *ValidationError, a request denied by hunt rules is a *PolicyError. Anything
// else reaching a handler is an internal error.
package error

import (
	"errors"
	"fmt"
)

var (
	ErrTypeAssertMismatch = errors.New("type assertion mismatch")
	ErrNotFound           = errors.New("not found")
)

type PolicyCode string

const (
	CodeNotUnlocked     PolicyCode = "not_unlocked"
	CodeAlreadySolved   PolicyCode = "already_solved"
	CodeNoGuesses       PolicyCode = "no_guesses"
	CodeAlreadyTried    PolicyCode = "already_tried"
	CodeNoHints         PolicyCode = "no_hints"
	CodeHintOpen        PolicyCode = "hint_open"
	CodeCannotFollowup  PolicyCode = "cannot_followup"
	CodeHintClaimed     PolicyCode = "hint_claimed"
	CodeHintResolved    PolicyCode = "hint_resolved"
	CodeStatusChanged   PolicyCode = "status_changed"
	CodeHuntClosed      PolicyCode = "hunt_closed"
	CodeNoFreeAnswers   PolicyCode = "no_free_answers"
	CodeMetaFreeAnswer  PolicyCode = "meta_free_answer"
	CodeNotSolved       PolicyCode = "not_solved"
	CodeSurveysClosed   PolicyCode = "surveys_closed"
	CodeTeamFull        PolicyCode = "team_full"
	CodeShortcutUnbound PolicyCode = "shortcut_unbound"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type PolicyError struct {
	Code    PolicyCode
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func Policy(code PolicyCode, format string, args ...any) error {
	return &PolicyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsPolicy reports whether err is a policy denial with the given code.
func IsPolicy(err error, code PolicyCode) bool {
	var pe *PolicyError
	return errors.As(err, &pe) && pe.Code == code
}
