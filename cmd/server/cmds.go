package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/migrations"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/puzzlefile"
	"github.com/puzzlehunt/huntserver/internal/config"
	"github.com/puzzlehunt/huntserver/internal/exitcode"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

var (
	hintCount  int
	hintTeam   string
	teamCount  int
	teamPrefix string
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Puzzle hunt server and its admin commands",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), false, func(ctx context.Context, db *gorm.DB) error {
			return migrations.Up(ctx, db)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration, dropping all hunt data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), false, func(ctx context.Context, db *gorm.DB) error {
			return migrations.Down(ctx, db)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the last applied migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd.Context(), false, func(ctx context.Context, db *gorm.DB) error {
			v, err := migrations.Version(ctx, db)
			if err != nil {
				return err
			}
			cmd.Println(v)
			return nil
		})
	},
}

var importPuzzlesCmd = &cobra.Command{
	Use:   "import-puzzles <catalog.yaml>",
	Short: "Upsert rounds, puzzles, meta edges and canned messages from a catalog file",
	Long: `
- Exits with 0 when the catalog was imported.
- Exits with 2 when the catalog fails validation. Nothing is written.
- Exits with 1 for all other errors.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "importPuzzlesCmd")
		defer span.End()

		span.SetAttributes(attribute.String("path", args[0]))

		file, err := puzzlefile.Load(ctx, args[0])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load catalog")

			var schemaErr *puzzlefile.SchemaError
			if errors.As(err, &schemaErr) {
				locations := make([]string, 0, len(schemaErr.Fields))
				for loc := range schemaErr.Fields {
					locations = append(locations, loc)
				}
				sort.Strings(locations)
				for _, loc := range locations {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", loc, schemaErr.Fields[loc])
				}
			}
			return exitcode.Wrap(exitcode.Rejected, err)
		}

		rounds, puzzles := file.Specs()
		err = withDB(ctx, true, func(ctx context.Context, db *gorm.DB) error {
			return models.ImportCatalog(ctx, db, rounds, puzzles)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to import catalog")
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rounds and %d puzzles\n", len(rounds), len(puzzles))
		span.SetStatus(codes.Ok, "imported catalog")
		return nil
	},
}

func adjustHints(sign int) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if hintCount <= 0 {
			return exitcode.Wrap(exitcode.Rejected, errors.New("--count must be positive"))
		}

		return withDB(cmd.Context(), true, func(ctx context.Context, db *gorm.DB) error {
			var teamID *uuid.UUID
			if hintTeam != "" {
				team, err := models.TeamByName(ctx, db, hintTeam)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return exitcode.Wrap(exitcode.Rejected, fmt.Errorf("no team named %q", hintTeam))
				}
				if err != nil {
					return err
				}
				teamID = &team.ID
			}

			n, err := models.AdjustAwards(ctx, db, teamID, sign*hintCount, 0)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Adjusted hints by %d for %d teams\n", sign*hintCount, n)
			return nil
		})
	}
}

var awardHintsCmd = &cobra.Command{
	Use:   "award-hints",
	Short: "Give every team, or one named team, extra hints",
	RunE:  adjustHints(1),
}

var takeAwayHintsCmd = &cobra.Command{
	Use:   "take-away-hints",
	Short: "Remove hints from every team, or one named team",
	RunE:  adjustHints(-1),
}

var generateEmptyTeamsCmd = &cobra.Command{
	Use:   "generate-empty-teams",
	Short: "Create teams without members and print their login credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if teamCount <= 0 {
			return exitcode.Wrap(exitcode.Rejected, errors.New("--count must be positive"))
		}

		return withDB(cmd.Context(), true, func(ctx context.Context, db *gorm.DB) error {
			return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				teams, err := models.CreateEmptyTeams(ctx, tx, teamPrefix, teamCount, time.Now())
				if err != nil {
					return err
				}

				for _, team := range teams {
					token, err := game.NewToken()
					if err != nil {
						return fmt.Errorf("failed to generate token: %w", err)
					}
					if err := models.CreateTeamAuth(ctx, tx, team.ID, team.TeamName, token); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", team.TeamName, team.ID, token)
				}
				return nil
			})
		})
	},
}

// withDB connects with the server's config and runs fn. The schema is brought up first when
// migrate is set.
func withDB(ctx context.Context, migrate bool, fn func(ctx context.Context, db *gorm.DB) error) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

	var db *gorm.DB
	if migrate {
		db, err = openDB(ctx, cfg)
	} else {
		db, err = connectDB(ctx, cfg)
	}
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return fn(ctx, db)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	for _, cmd := range []*cobra.Command{awardHintsCmd, takeAwayHintsCmd} {
		cmd.Flags().IntVar(&hintCount, "count", 0, "Number of hints")
		cmd.Flags().StringVar(&hintTeam, "team", "", "Only adjust the team with this name")
		if err := cmd.MarkFlagRequired("count"); err != nil {
			panic("Internal error contact a contributor [count-flag-required]")
		}
	}

	generateEmptyTeamsCmd.Flags().IntVar(&teamCount, "count", 0, "Number of teams")
	generateEmptyTeamsCmd.Flags().StringVar(&teamPrefix, "prefix", "Team ", "Team name prefix, numbered from 1")
	if err := generateEmptyTeamsCmd.MarkFlagRequired("count"); err != nil {
		panic("Internal error contact a contributor [count-flag-required]")
	}

	rootCmd.AddCommand(
		migrateCmd,
		importPuzzlesCmd,
		awardHintsCmd,
		takeAwayHintsCmd,
		generateEmptyTeamsCmd,
	)
}
