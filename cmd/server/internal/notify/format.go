package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimeAgo renders the gap between t and now as " 1d2h03m04s ago", or "" for a zero t.
func TimeAgo(now time.Time, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}
	days := int(diff / (24 * time.Hour))
	seconds := int((diff % (24 * time.Hour)) / time.Second)

	var b strings.Builder
	b.WriteString(" ")
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	minutes := seconds / 60
	if minutes > 0 {
		if hours := minutes / 60; hours > 0 {
			fmt.Fprintf(&b, "%dh", hours)
		}
		fmt.Fprintf(&b, "%02dm", minutes%60)
	}
	fmt.Fprintf(&b, "%02ds ago", seconds%60)
	return b.String()
}

type HintSummary struct {
	Submitted time.Time
	Status    string
	Answered  time.Time
}

// HintLine summarizes a team's hints on one puzzle for submission alerts.
func HintLine(now time.Time, hints []HintSummary) string {
	if len(hints) == 0 {
		return ""
	}
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, fmt.Sprintf("%s (%s%s)", TimeAgo(now, h.Submitted), h.Status, TimeAgo(now, h.Answered)))
	}
	return "\nHints:" + strings.Join(parts, ",")
}

// PlaceSigil marks the first three public correct solves of a puzzle.
func PlaceSigil(correct bool, place int) string {
	if !correct {
		return ":x:"
	}
	switch place {
	case 1:
		return ":first_place:"
	case 2:
		return ":second_place:"
	case 3:
		return ":third_place:"
	default:
		return ":white_check_mark:"
	}
}

func SubmissionAlert(sigil, emoji, team, answer, puzzle string, correct bool, hintLine string) string {
	verdict := "Incorrect."
	if correct {
		verdict = "Correct!"
	}
	return fmt.Sprintf("%s %s Team %s submitted `%s` for %s: %s%s", sigil, emoji, team, answer, puzzle, verdict, hintLine)
}

func FreeAnswerAlert(emoji, team, puzzle, hintLine string) string {
	return fmt.Sprintf(":question: %s Team %s used a free answer on %s!%s", emoji, team, puzzle, hintLine)
}

func VictoryAlert(team string) string {
	return fmt.Sprintf(":trophy: Team %s has finished the hunt!", team)
}

func TeamCreatedAlert(team string, members int) string {
	return fmt.Sprintf("Team created: %s (%d members)", team, members)
}

const maxQuestionPreview = 500

func HintRequestAlert(followup bool, emoji, puzzle, team, question string) string {
	kind := "Hint"
	if followup {
		kind = "*Followup hint*"
	}
	if utf8.RuneCountInString(question) > maxQuestionPreview {
		question = string([]rune(question)[:maxQuestionPreview])
	}
	return fmt.Sprintf("%s requested on %s %s by %s\n```%s```", kind, emoji, puzzle, team, question)
}

func HintClaimedAlert(puzzle, team, claimer string) string {
	return fmt.Sprintf("Hint on %s by %s claimed by %s", puzzle, team, claimer)
}

func HintResolvedAlert(puzzle, team, status, responder string) string {
	return fmt.Sprintf("Hint on %s by %s %s by %s", puzzle, team, strings.ToLower(status), responder)
}
