// Package puzzlefile reads the YAML catalog staff write before a hunt and turns it into the rounds and
// puzzles models.ImportCatalog upserts.
package puzzlefile

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v2"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/internal/validator"
)

var tracer = otel.Tracer("github.com/puzzlehunt/huntserver/cmd/server/internal/puzzlefile")

//go:embed schema.json
var rawSchema string

var Schema = jsonschema.MustCompileString("schema.json", rawSchema)

type Round struct {
	Slug  string `yaml:"slug"  json:"slug"  validate:"required,slug"`
	Name  string `yaml:"name"  json:"name"  validate:"required"`
	Order int    `yaml:"order" json:"order"`
	Meta  string `yaml:"meta"  json:"meta"  validate:"omitempty,slug"`
}

type Message struct {
	Guess    string `yaml:"guess"    json:"guess"    validate:"required"`
	Response string `yaml:"response" json:"response" validate:"required"`
}

// Unlock thresholds default to -1, which disables that trigger.
type Puzzle struct {
	Slug          string    `yaml:"slug"           json:"slug"           validate:"required,slug"`
	Name          string    `yaml:"name"           json:"name"           validate:"required"`
	Answer        string    `yaml:"answer"         json:"answer"         validate:"required"`
	Round         string    `yaml:"round"          json:"round"          validate:"required,slug"`
	Order         int       `yaml:"order"          json:"order"`
	IsMeta        bool      `yaml:"is_meta"        json:"is_meta"`
	Emoji         string    `yaml:"emoji"          json:"emoji"`
	UnlockHours   *int      `yaml:"unlock_hours"   json:"unlock_hours"`
	UnlockGlobal  *int      `yaml:"unlock_global"  json:"unlock_global"`
	UnlockLocal   *int      `yaml:"unlock_local"   json:"unlock_local"`
	DeepThreshold int       `yaml:"deep_threshold" json:"deep_threshold"`
	Feeds         []string  `yaml:"feeds"          json:"feeds"          validate:"dive,slug"`
	Messages      []Message `yaml:"messages"       json:"messages"       validate:"dive"`
}

type File struct {
	Rounds  []Round  `yaml:"rounds"  json:"rounds"  validate:"dive"`
	Puzzles []Puzzle `yaml:"puzzles" json:"puzzles" validate:"dive"`
}

// SchemaError lists every schema violation keyed by its location in the document.
type SchemaError struct {
	Fields map[string]string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("catalog failed schema validation with %d errors", len(e.Fields))
}

// yaml.v2 decodes mappings with interface keys, which JSON schema cannot walk.
func toJSONValue(v any) (any, error) {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			conv, err := toJSONValue(val)
			if err != nil {
				return nil, err
			}
			out[key] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			conv, err := toJSONValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

func validateSchema(content []byte) error {
	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog yaml: %w", err)
	}
	doc, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("failed to convert catalog yaml: %w", err)
	}

	// round trip so numbers reach the validator as json.Number
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert catalog yaml: %w", err)
	}
	var instance any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&instance); err != nil {
		return fmt.Errorf("failed to convert catalog yaml: %w", err)
	}

	err = Schema.Validate(instance)
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		errs := validationErr.BasicOutput().Errors
		fields := make(map[string]string, len(errs))
		for _, e := range errs {
			if e.Error == "" {
				continue
			}
			fields[e.InstanceLocation] = e.Error
		}
		return &SchemaError{Fields: fields}
	}
	return err
}

func Parse(ctx context.Context, content []byte) (*File, error) {
	_, span := tracer.Start(ctx, "Parse")
	defer span.End()

	span.AddEvent("validating catalog against schema")
	if err := validateSchema(content); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog failed schema validation")
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error unmarshalling catalog yaml")
		return nil, err
	}

	v := validator.Create()
	if err := v.Validate(f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error validating catalog yaml")
		return nil, err
	}

	if err := f.checkReferences(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog has dangling references")
		return nil, err
	}

	span.SetAttributes(attribute.Int("rounds", len(f.Rounds)), attribute.Int("puzzles", len(f.Puzzles)))
	span.SetStatus(codes.Ok, "parsed catalog")
	return &f, nil
}

func Load(ctx context.Context, path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, content)
}

// Slugs must be unique and every meta a puzzle feeds must be a meta in the same file. Rounds may
// live in the database already.
func (f *File) checkReferences() error {
	rounds := make(map[string]bool, len(f.Rounds))
	for _, r := range f.Rounds {
		if rounds[r.Slug] {
			return fmt.Errorf("round %s is listed twice", r.Slug)
		}
		rounds[r.Slug] = true
	}

	metas := make(map[string]bool)
	seen := make(map[string]bool, len(f.Puzzles))
	for _, p := range f.Puzzles {
		if seen[p.Slug] {
			return fmt.Errorf("puzzle %s is listed twice", p.Slug)
		}
		seen[p.Slug] = true
		if p.IsMeta {
			metas[p.Slug] = true
		}
	}

	for _, p := range f.Puzzles {
		for _, meta := range p.Feeds {
			if !metas[meta] {
				return fmt.Errorf("puzzle %s feeds %s, which is not a meta in this file", p.Slug, meta)
			}
			if meta == p.Slug {
				return fmt.Errorf("puzzle %s feeds itself", p.Slug)
			}
		}
	}
	for _, r := range f.Rounds {
		if r.Meta != "" && !metas[r.Meta] {
			return fmt.Errorf("round %s names %s as its meta, which is not a meta in this file", r.Slug, r.Meta)
		}
	}
	return nil
}

func threshold(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// Specs converts the file into the import shapes.
func (f *File) Specs() ([]models.RoundSpec, []models.PuzzleSpec) {
	rounds := make([]models.RoundSpec, 0, len(f.Rounds))
	for _, r := range f.Rounds {
		rounds = append(rounds, models.RoundSpec{
			Round:    models.Round{Name: r.Name, Slug: r.Slug, Order: r.Order},
			MetaSlug: r.Meta,
		})
	}

	puzzles := make([]models.PuzzleSpec, 0, len(f.Puzzles))
	for _, p := range f.Puzzles {
		spec := models.PuzzleSpec{
			Puzzle: models.Puzzle{
				Name:          p.Name,
				Slug:          p.Slug,
				Answer:        p.Answer,
				Order:         p.Order,
				IsMeta:        p.IsMeta,
				Emoji:         p.Emoji,
				UnlockHours:   threshold(p.UnlockHours),
				UnlockGlobal:  threshold(p.UnlockGlobal),
				UnlockLocal:   threshold(p.UnlockLocal),
				DeepThreshold: p.DeepThreshold,
			},
			RoundSlug: p.Round,
			Feeds:     p.Feeds,
		}
		for _, m := range p.Messages {
			spec.Messages = append(spec.Messages, models.PuzzleMessage{Guess: m.Guess, Response: m.Response})
		}
		puzzles = append(puzzles, spec)
	}
	return rounds, puzzles
}
