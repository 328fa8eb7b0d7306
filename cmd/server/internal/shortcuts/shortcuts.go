// Package shortcuts is the staff menu of state-changing test operations. Each entry names the
// parameters it needs; the menu only offers entries the current selection can satisfy.
package shortcuts

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
)

const name = "github.com/puzzlehunt/huntserver/cmd/server/internal/shortcuts"

var tracer = otel.Tracer(name)

type Param int

const (
	ParamPuzzle Param = iota
	ParamTeam
	ParamNow
)

func (p Param) String() string {
	switch p {
	case ParamPuzzle:
		return "puzzle"
	case ParamTeam:
		return "team"
	case ParamNow:
		return "now"
	}
	return fmt.Sprintf("param(%d)", int(p))
}

// Binding is the selection a shortcut runs against.
type Binding struct {
	Puzzle *catalog.Puzzle
	// the selected team's view; nil or teamless when no team is selected
	Team *requestctx.Context
	Now  time.Time
}

func (b Binding) has(p Param) bool {
	switch p {
	case ParamPuzzle:
		return b.Puzzle != nil
	case ParamTeam:
		return b.Team != nil && b.Team.Team() != nil
	case ParamNow:
		return !b.Now.IsZero()
	}
	return false
}

type Action func(ctx context.Context, b Binding) error

// Entry is one menu line. Headings have a Label and no Run.
type Entry struct {
	Name    string
	Label   string
	Params  []Param
	Danger  bool
	Heading bool
	Run     Action
}

func Heading(label string, params ...Param) Entry {
	return Entry{Label: label, Params: params, Heading: true}
}

type Item struct {
	Action string `json:"action,omitempty"`
	Name   string `json:"name"`
	Danger bool   `json:"danger,omitempty"`
}

type Registry struct {
	entries []Entry
	byName  map[string]Entry
}

// New panics on a duplicate or empty action name, which is a programming error.
func New(entries ...Entry) *Registry {
	r := &Registry{byName: make(map[string]Entry)}
	for _, e := range entries {
		if !e.Heading {
			if e.Name == "" || e.Run == nil {
				panic(fmt.Sprintf("shortcut %q needs a name and an action", e.Label))
			}
			if _, ok := r.byName[e.Name]; ok {
				panic(fmt.Sprintf("duplicate shortcut %q", e.Name))
			}
			r.byName[e.Name] = e
		}
		r.entries = append(r.entries, e)
	}
	return r
}

// List returns the entries whose parameters b can bind, in registration order.
func (r *Registry) List(b Binding) []Item {
	var out []Item
	for _, e := range r.entries {
		if !bound(e, b) {
			continue
		}
		if e.Heading {
			out = append(out, Item{Name: e.Label})
			continue
		}
		out = append(out, Item{Action: e.Name, Name: e.Label, Danger: e.Danger})
	}
	return out
}

func bound(e Entry, b Binding) bool {
	return !slices.ContainsFunc(e.Params, func(p Param) bool { return !b.has(p) })
}

func (r *Registry) Dispatch(ctx context.Context, action string, b Binding) error {
	ctx, span := tracer.Start(ctx, "Dispatch")
	defer span.End()

	span.SetAttributes(attribute.String("shortcut", action))

	e, ok := r.byName[action]
	if !ok {
		span.SetStatus(codes.Error, "unknown shortcut")
		return srverr.Validation("action", fmt.Sprintf("Invalid action %q", action))
	}
	for _, p := range e.Params {
		if !b.has(p) {
			span.SetStatus(codes.Error, "shortcut parameter missing")
			return srverr.Policy(srverr.CodeShortcutUnbound, "Shortcut %s needs a %s.", action, p)
		}
	}

	if err := e.Run(ctx, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "shortcut failed")
		return fmt.Errorf("shortcut %s failed: %w", action, err)
	}

	span.SetStatus(codes.Ok, "ran shortcut")
	return nil
}
