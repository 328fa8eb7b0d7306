// Package notify delivers domain events to teams, staff and mailboxes without ever failing the caller.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/puzzlehunt/huntserver/internal/types"
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Sink,Mailer,Alerter,Publisher

type Kind string

const (
	KindUnlock       Kind = "unlock"
	KindMetaSolved   Kind = "meta_solved"
	KindHuntFinished Kind = "hunt_finished"
	KindHintAnswered Kind = "hint_answered"
)

// Event is what a team's open pages receive.
type Event struct {
	Kind       Kind            `json:"kind"`
	TeamID     uuid.UUID       `json:"-"`
	PuzzleSlug string          `json:"puzzle_slug,omitempty"`
	PuzzleName string          `json:"puzzle_name,omitempty"`
	Message    string          `json:"message"`
	Link       string          `json:"link,omitempty"`
	At         types.UnixMilli `json:"at"`
}

func UnlockEvent(teamID uuid.UUID, slug string, name string, at time.Time) Event {
	return Event{
		Kind:       KindUnlock,
		TeamID:     teamID,
		PuzzleSlug: slug,
		PuzzleName: name,
		Message:    "You've unlocked a new puzzle!",
		Link:       "/puzzle/" + slug,
		At:         types.NewUnixMilli(at),
	}
}

func MetaSolvedEvent(teamID uuid.UUID, slug string, name string, at time.Time) Event {
	return Event{
		Kind:       KindMetaSolved,
		TeamID:     teamID,
		PuzzleSlug: slug,
		PuzzleName: name,
		Message:    "You've solved a meta!",
		Link:       "/puzzle/" + slug,
		At:         types.NewUnixMilli(at),
	}
}

func HuntFinishedEvent(teamID uuid.UUID, huntTitle string, at time.Time) Event {
	return Event{
		Kind:    KindHuntFinished,
		TeamID:  teamID,
		Message: fmt.Sprintf("Congratulations! You've finished the %s!", huntTitle),
		Link:    "/victory",
		At:      types.NewUnixMilli(at),
	}
}

func HintAnsweredEvent(teamID uuid.UUID, slug string, name string, at time.Time) Event {
	return Event{
		Kind:       KindHintAnswered,
		TeamID:     teamID,
		PuzzleSlug: slug,
		PuzzleName: name,
		Message:    "Hint answered!",
		Link:       "/puzzle/" + slug + "/hints",
		At:         types.NewUnixMilli(at),
	}
}

// Sink accepts team events. Notify never blocks on delivery and never reports failure.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

type Channel string

const (
	ChannelGeneral     Channel = "general"
	ChannelSubmissions Channel = "submissions"
	ChannelFreeAnswers Channel = "free_answers"
	ChannelVictory     Channel = "victory"
	ChannelHints       Channel = "hints"
)

// Alerter posts a message to a staff chat channel.
type Alerter interface {
	Alert(ctx context.Context, channel Channel, message string) error
}

type Mail struct {
	Subject    string
	TemplateID string
	Data       map[string]any
	Recipients []string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Publisher fans raw messages out to every connection in a group.
type Publisher interface {
	Publish(group string, data []byte)
}

const StaffGroup = "staff"

func TeamGroup(teamID uuid.UUID) string {
	return "team:" + teamID.String()
}
