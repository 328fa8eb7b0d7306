package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/catalog"
	"github.com/puzzlehunt/huntserver/internal/answer"
)

type Round struct {
	Model
	Name   string
	Slug   string
	Order  int        `gorm:"column:sort_order"`
	MetaID *uuid.UUID // the round's meta, if it has one
}

func (Round) TableName() string {
	return "rounds"
}

type Puzzle struct {
	Model
	Name          string
	Slug          string
	Answer        string
	RoundID       uuid.UUID
	Order         int `gorm:"column:sort_order"`
	IsMeta        bool
	Emoji         string
	UnlockHours   int
	UnlockGlobal  int
	UnlockLocal   int
	DeepThreshold int
}

func (Puzzle) TableName() string {
	return "puzzles"
}

type MetaRequirement struct {
	MetaID   uuid.UUID `gorm:"primaryKey"`
	FeederID uuid.UUID `gorm:"primaryKey"`
}

func (MetaRequirement) TableName() string {
	return "meta_requirements"
}

// A canned reply to a specific wrong guess, e.g. an intermediate answer.
type PuzzleMessage struct {
	Model
	PuzzleID uuid.UUID
	Guess    string
	Response string
}

func (PuzzleMessage) TableName() string {
	return "puzzle_messages"
}

// Builds the request-time catalog from the puzzle tables.
func LoadCatalog(ctx context.Context, db *gorm.DB, introSlug string, metaMetaSlug string) (*catalog.Catalog, error) {
	ctx, span := tracer.Start(ctx, "LoadCatalog")
	defer span.End()

	db = db.WithContext(ctx)

	var rounds []Round
	if err := db.Find(&rounds).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load rounds")
		return nil, fmt.Errorf("failed to load rounds: %w", err)
	}

	var puzzles []Puzzle
	if err := db.Find(&puzzles).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load puzzles")
		return nil, fmt.Errorf("failed to load puzzles: %w", err)
	}

	var reqs []MetaRequirement
	if err := db.Find(&reqs).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load meta requirements")
		return nil, fmt.Errorf("failed to load meta requirements: %w", err)
	}

	byRound := make(map[uuid.UUID]*catalog.Round, len(rounds))
	for _, r := range rounds {
		byRound[r.ID] = &catalog.Round{ID: r.ID, Slug: r.Slug, Name: r.Name, Order: r.Order}
	}

	out := make([]*catalog.Puzzle, 0, len(puzzles))
	for _, p := range puzzles {
		out = append(out, &catalog.Puzzle{
			ID:            p.ID,
			Slug:          p.Slug,
			Name:          p.Name,
			Answer:        p.Answer,
			Emoji:         p.Emoji,
			Round:         byRound[p.RoundID],
			Order:         p.Order,
			IsMeta:        p.IsMeta,
			UnlockHours:   p.UnlockHours,
			UnlockGlobal:  p.UnlockGlobal,
			UnlockLocal:   p.UnlockLocal,
			DeepThreshold: p.DeepThreshold,
		})
	}

	requirements := make([]catalog.Requirement, 0, len(reqs))
	for _, r := range reqs {
		requirements = append(requirements, catalog.Requirement{MetaID: r.MetaID, FeederID: r.FeederID})
	}

	span.SetAttributes(attribute.Int("puzzles", len(out)), attribute.Int("rounds", len(rounds)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded catalog")
	return catalog.New(out, requirements, introSlug, metaMetaSlug), nil
}

// Finds the canned reply whose guess semi-cleans to the same text, if any.
func MatchPuzzleMessage(ctx context.Context, db *gorm.DB, puzzleID uuid.UUID, guess string) (*PuzzleMessage, error) {
	ctx, span := tracer.Start(ctx, "MatchPuzzleMessage")
	defer span.End()

	var messages []PuzzleMessage
	if err := db.WithContext(ctx).Where("puzzle_id = ?", puzzleID).Find(&messages).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load puzzle messages")
		return nil, fmt.Errorf("failed to load puzzle messages: %w", err)
	}

	cleaned := answer.SemiClean(guess)
	if cleaned == "" {
		return nil, nil
	}
	for i := range messages {
		if answer.SemiClean(messages[i].Guess) == cleaned {
			span.AddEvent("matched_message")
			return &messages[i], nil
		}
	}

	span.SetStatus(codes.Ok, "no message matched")
	return nil, nil
}

type RoundSpec struct {
	Round    Round
	MetaSlug string
}

type PuzzleSpec struct {
	Puzzle    Puzzle
	RoundSlug string
	Feeds     []string // slugs of the metas this puzzle is required by
	Messages  []PuzzleMessage
}

// Upserts rounds and puzzles by slug. Meta edges and canned messages of every imported puzzle are
// replaced wholesale.
func ImportCatalog(ctx context.Context, db *gorm.DB, rounds []RoundSpec, puzzles []PuzzleSpec) error {
	ctx, span := tracer.Start(ctx, "ImportCatalog")
	defer span.End()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roundIDs := make(map[string]uuid.UUID, len(rounds))
		for _, spec := range rounds {
			r := spec.Round
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "sort_order"}),
			}).Create(&r).Error
			if err != nil {
				return fmt.Errorf("failed to upsert round %s: %w", r.Slug, err)
			}
			var stored Round
			if err := tx.Where("slug = ?", r.Slug).First(&stored).Error; err != nil {
				return fmt.Errorf("failed to read back round %s: %w", r.Slug, err)
			}
			roundIDs[r.Slug] = stored.ID
		}

		puzzleIDs := make(map[string]uuid.UUID, len(puzzles))
		for _, spec := range puzzles {
			p := spec.Puzzle
			roundID, ok := roundIDs[spec.RoundSlug]
			if !ok {
				var stored Round
				if err := tx.Where("slug = ?", spec.RoundSlug).First(&stored).Error; err != nil {
					return fmt.Errorf("puzzle %s: unknown round %s: %w", p.Slug, spec.RoundSlug, err)
				}
				roundID = stored.ID
			}
			p.RoundID = roundID

			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "answer", "round_id", "sort_order", "is_meta", "emoji",
					"unlock_hours", "unlock_global", "unlock_local", "deep_threshold",
				}),
			}).Create(&p).Error
			if err != nil {
				return fmt.Errorf("failed to upsert puzzle %s: %w", p.Slug, err)
			}
			var stored Puzzle
			if err := tx.Where("slug = ?", p.Slug).First(&stored).Error; err != nil {
				return fmt.Errorf("failed to read back puzzle %s: %w", p.Slug, err)
			}
			puzzleIDs[p.Slug] = stored.ID
		}

		for _, spec := range puzzles {
			id := puzzleIDs[spec.Puzzle.Slug]

			if err := tx.Where("feeder_id = ?", id).Delete(&MetaRequirement{}).Error; err != nil {
				return fmt.Errorf("failed to clear meta edges of %s: %w", spec.Puzzle.Slug, err)
			}
			for _, metaSlug := range spec.Feeds {
				metaID, ok := puzzleIDs[metaSlug]
				if !ok {
					return fmt.Errorf("puzzle %s feeds unknown meta %s", spec.Puzzle.Slug, metaSlug)
				}
				if err := tx.Create(&MetaRequirement{MetaID: metaID, FeederID: id}).Error; err != nil {
					return fmt.Errorf("failed to create meta edge %s -> %s: %w", spec.Puzzle.Slug, metaSlug, err)
				}
			}

			if err := tx.Where("puzzle_id = ?", id).Delete(&PuzzleMessage{}).Error; err != nil {
				return fmt.Errorf("failed to clear messages of %s: %w", spec.Puzzle.Slug, err)
			}
			for _, m := range spec.Messages {
				m.PuzzleID = id
				if err := tx.Create(&m).Error; err != nil {
					return fmt.Errorf("failed to create message for %s: %w", spec.Puzzle.Slug, err)
				}
			}
		}

		for _, spec := range rounds {
			if spec.MetaSlug == "" {
				continue
			}
			metaID, ok := puzzleIDs[spec.MetaSlug]
			if !ok {
				return fmt.Errorf("round %s has unknown meta %s", spec.Round.Slug, spec.MetaSlug)
			}
			err := tx.Model(&Round{}).Where("slug = ?", spec.Round.Slug).Update("meta_id", metaID).Error
			if err != nil {
				return fmt.Errorf("failed to set meta of round %s: %w", spec.Round.Slug, err)
			}
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to import catalog")
		return err
	}

	span.SetAttributes(attribute.Int("rounds", len(rounds)), attribute.Int("puzzles", len(puzzles)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "imported catalog")
	return nil
}
