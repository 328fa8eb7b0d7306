package game

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/quota"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/unlock"
	"github.com/puzzlehunt/huntserver/internal/audit"
)

type Member struct {
	Name  string `json:"name"  validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type Registration struct {
	TeamName string   `json:"team_name" validate:"required,max=255"`
	Members  []Member `json:"members"   validate:"required,min=1,dive"`
}

// Registered carries the login token, shown once.
type Registered struct {
	Team  *models.Team `json:"team"`
	Token string       `json:"token"`
}

// NewToken is a random login secret. Only its argon2id hash is stored.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Service) RegisterTeam(ctx context.Context, reg Registration, now time.Time) (*Registered, error) {
	ctx, span := tracer.Start(ctx, "RegisterTeam")
	defer span.End()

	name := strings.TrimSpace(reg.TeamName)
	if name == "" {
		return nil, srverr.Validation("team_name", "A team needs a name.")
	}
	if s.rules.MaxMembersPerTeam > 0 && len(reg.Members) > s.rules.MaxMembersPerTeam {
		return nil, srverr.Policy(srverr.CodeTeamFull, "Teams may have at most %d members.", s.rules.MaxMembersPerTeam)
	}

	token, err := NewToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate token")
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	team := &models.Team{TeamName: name, CreationTime: now}
	for _, m := range reg.Members {
		team.Members = append(team.Members, models.TeamMember{
			Name:  strings.TrimSpace(m.Name),
			Email: strings.TrimSpace(m.Email),
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.CreateTeam(ctx, tx, team); err != nil {
			return err
		}
		return models.CreateTeamAuth(ctx, tx, team.ID, team.TeamName, token)
	})
	if models.IsDuplicate(err) {
		span.AddEvent("team_name_taken")
		span.SetStatus(codes.Ok, "team name taken")
		return nil, srverr.Validation("team_name", "That team name is already taken.")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register team")
		return nil, err
	}

	span.SetAttributes(attribute.String("team.id", team.ID.String()))
	audit.LogTeamRegistered(s.auditContext(team.ID, ""), team.TeamName, len(team.Members))
	s.notifier.Alert(ctx, notify.ChannelGeneral, notify.TeamCreatedAlert(team.TeamName, len(team.Members)))
	s.invalidateBoard(ctx)

	span.SetStatus(codes.Ok, "registered team")
	return &Registered{Team: team, Token: token}, nil
}

func (s *Service) invalidateBoard(ctx context.Context) {
	if s.board == nil {
		return
	}
	s.board.Invalidate(ctx)
}

func (s *Service) TeamQuota(ctx context.Context, rc *requestctx.Context) (quota.Summary, error) {
	if _, err := requireTeam(rc); err != nil {
		return quota.Summary{}, err
	}
	return rc.Quota(ctx)
}

// ComputeUnlocks is the team's unlock set as of the request, persisting what it newly crossed.
func (s *Service) ComputeUnlocks(ctx context.Context, rc *requestctx.Context) (unlock.Set, error) {
	return rc.Unlocks(ctx)
}

type PuzzleStatus struct {
	Slug             string     `json:"slug"`
	Name             string     `json:"name"`
	Round            string     `json:"round"`
	IsMeta           bool       `json:"is_meta"`
	UnlockedAt       time.Time  `json:"unlocked_at"`
	SolvedAt         *time.Time `json:"solved_at,omitempty"`
	Answer           string     `json:"answer,omitempty"`
	GuessesRemaining *int       `json:"guesses_remaining,omitempty"`
}

// Puzzles lists what the team can see, in unlock order.
func (s *Service) Puzzles(ctx context.Context, rc *requestctx.Context) ([]PuzzleStatus, error) {
	ctx, span := tracer.Start(ctx, "Puzzles")
	defer span.End()

	unlocks, err := rc.Unlocks(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compute unlocks")
		return nil, err
	}
	solves, err := rc.Solves(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load solves")
		return nil, err
	}

	out := make([]PuzzleStatus, 0, unlocks.Len())
	for _, u := range unlocks.List() {
		st := PuzzleStatus{
			Slug:       u.Puzzle.Slug,
			Name:       u.Puzzle.Name,
			IsMeta:     u.Puzzle.IsMeta,
			UnlockedAt: u.At,
		}
		if u.Puzzle.Round != nil {
			st.Round = u.Puzzle.Round.Name
		}
		if at, ok := solves[u.Puzzle.ID]; ok {
			st.SolvedAt = &at
			st.Answer = u.Puzzle.Answer
		}
		out = append(out, st)
	}

	span.SetAttributes(attribute.Int("puzzles", len(out)))
	span.SetStatus(codes.Ok, "listed puzzles")
	return out, nil
}

// ViewPuzzle opens a puzzle page and records the team's first visit.
func (s *Service) ViewPuzzle(ctx context.Context, rc *requestctx.Context, slug string) (*PuzzleStatus, error) {
	ctx, span := tracer.Start(ctx, "ViewPuzzle")
	defer span.End()

	span.SetAttributes(attribute.String("puzzle.slug", slug))

	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "puzzle not available")
		return nil, err
	}
	unlocks, err := rc.Unlocks(ctx)
	if err != nil {
		return nil, err
	}
	at, _ := unlocks.At(p.ID)

	st := &PuzzleStatus{Slug: p.Slug, Name: p.Name, IsMeta: p.IsMeta, UnlockedAt: at}
	if p.Round != nil {
		st.Round = p.Round.Name
	}

	team := rc.Team()
	if team == nil {
		span.SetStatus(codes.Ok, "anonymous view")
		return st, nil
	}

	solved, err := solvedAt(ctx, rc, p.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load submissions")
		return nil, err
	}
	if solved != nil {
		st.SolvedAt = &solved.SubmittedDatetime
		st.Answer = p.Answer
	} else {
		remaining, err := s.GuessesRemaining(ctx, rc, p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to count guesses")
			return nil, err
		}
		st.GuessesRemaining = &remaining
	}

	// universal access computes unlocks without persisting them, so there is no row to mark
	if !rc.HuntIsClosed() {
		first, err := models.MarkViewed(ctx, s.db, team.ID, p.ID, rc.Now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to mark viewed")
			return nil, err
		}
		if first {
			span.AddEvent("first_view")
		}
	}

	span.SetStatus(codes.Ok, "viewed puzzle")
	return st, nil
}

type SurveyInput struct {
	Fun        int    `json:"fun"        validate:"required,min=1,max=6"`
	Difficulty int    `json:"difficulty" validate:"required,min=1,max=6"`
	Comments   string `json:"comments"`
}

func (s *Service) SubmitSurvey(ctx context.Context, rc *requestctx.Context, slug string, in SurveyInput) error {
	ctx, span := tracer.Start(ctx, "SubmitSurvey")
	defer span.End()

	team, err := requireTeam(rc)
	if err != nil {
		return err
	}
	if !s.rules.SurveysEnabled {
		return srverr.Policy(srverr.CodeSurveysClosed, "Surveys are closed.")
	}
	if in.Fun < 1 || in.Fun > 6 {
		return srverr.Validation("fun", "Ratings run from 1 to 6.")
	}
	if in.Difficulty < 1 || in.Difficulty > 6 {
		return srverr.Validation("difficulty", "Ratings run from 1 to 6.")
	}

	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		return err
	}
	solved, err := solvedAt(ctx, rc, p.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load submissions")
		return err
	}
	if solved == nil {
		return srverr.Policy(srverr.CodeNotSolved, "You can only rate puzzles you have solved.")
	}

	err = models.UpsertSurvey(ctx, s.db, &models.Survey{
		TeamID:            team.ID,
		PuzzleID:          p.ID,
		Fun:               in.Fun,
		Difficulty:        in.Difficulty,
		Comments:          in.Comments,
		SubmittedDatetime: rc.Now(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save survey")
		return err
	}

	audit.LogSurveySubmitted(s.auditContext(team.ID, p.Slug), in.Fun, in.Difficulty)
	span.SetStatus(codes.Ok, "saved survey")
	return nil
}

type SolveEntry struct {
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	Answer     string    `json:"answer"`
	SolvedAt   time.Time `json:"solved_at"`
	IsMeta     bool      `json:"is_meta"`
	Backsolve  bool      `json:"backsolve"`
	FreeAnswer bool      `json:"free_answer"`
}

// SolveLog lists the team's solves oldest first.
func (s *Service) SolveLog(ctx context.Context, rc *requestctx.Context) ([]SolveEntry, error) {
	if _, err := requireTeam(rc); err != nil {
		return nil, err
	}
	cat, err := rc.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	subs, err := rc.Submissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	solves, err := rc.Solves(ctx)
	if err != nil {
		return nil, err
	}

	var out []SolveEntry
	for _, sub := range subs {
		if !sub.IsCorrect {
			continue
		}
		p, ok := cat.ByID(sub.PuzzleID)
		if !ok {
			continue
		}
		out = append(out, SolveEntry{
			Slug:       p.Slug,
			Name:       p.Name,
			Answer:     p.Answer,
			SolvedAt:   sub.SubmittedDatetime,
			IsMeta:     p.IsMeta,
			Backsolve:  cat.IsBacksolve(p, solves),
			FreeAnswer: sub.UsedFreeAnswer,
		})
	}
	slices.Reverse(out)
	return out, nil
}

// Progress is the team's DEEP value and unlocked puzzle count.
type Progress struct {
	Deep     int `json:"deep"`
	Unlocked int `json:"unlocked"`
}

func (s *Service) Progress(ctx context.Context, rc *requestctx.Context) (Progress, error) {
	unlocks, err := rc.Unlocks(ctx)
	if err != nil {
		return Progress{}, err
	}
	deep, err := rc.Deep(ctx)
	if err != nil {
		return Progress{}, err
	}
	return Progress{Deep: deep, Unlocked: unlocks.Len()}, nil
}
