package game

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/hints"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/notify"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/quota"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
	"github.com/puzzlehunt/huntserver/internal/audit"
	"github.com/puzzlehunt/huntserver/internal/logger"
)

const (
	NotifyNone = "none"
	NotifyAll  = "all"
)

type HintRequest struct {
	Question string `json:"question" validate:"required"`
	// none, all, or one team member address
	NotifyEmails string `json:"notify_emails"`
	IsFollowup   bool   `json:"is_followup"`
}

// HintThread is what a team sees about its hints on one puzzle.
type HintThread struct {
	Hints             []models.Hint `json:"hints"`
	CanFollowup       bool          `json:"can_followup"`
	RelevantRemaining int           `json:"relevant_hints_remaining"`
	Error             string        `json:"error,omitempty"`
}

// PuzzleHints lists the team's hints on a puzzle, newest first, and whether a new one could be filed.
func (s *Service) PuzzleHints(ctx context.Context, rc *requestctx.Context, slug string) (*HintThread, error) {
	ctx, span := tracer.Start(ctx, "PuzzleHints")
	defer span.End()

	if _, err := requireTeam(rc); err != nil {
		return nil, err
	}
	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve puzzle")
		return nil, err
	}
	cat, err := rc.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	all, err := rc.Hints(ctx)
	if err != nil {
		return nil, err
	}
	history, err := rc.HintHistory(ctx)
	if err != nil {
		return nil, err
	}
	q, err := rc.Quota(ctx)
	if err != nil {
		return nil, err
	}

	thread := &HintThread{
		Hints:             []models.Hint{},
		CanFollowup:       !rc.HuntIsOver() && quota.CanFollowup(history, p.ID),
		RelevantRemaining: q.RelevantHintsRemaining(cat.IsIntro(p)),
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].PuzzleID == p.ID {
			thread.Hints = append(thread.Hints, all[i])
		}
	}

	req := quota.Request{PuzzleID: p.ID, IsIntro: cat.IsIntro(p)}
	if _, err := quota.Gate(ctx, s.rules, rc, q, history, req); err != nil {
		thread.Error = policyMessage(err)
	}

	span.SetStatus(codes.Ok, "listed hints")
	return thread, nil
}

func policyMessage(err error) string {
	var pe *srverr.PolicyError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// notifyTarget validates a notify preference against the team's addresses.
func (s *Service) notifyTarget(ctx context.Context, teamID uuid.UUID, pref string) (string, error) {
	pref = strings.TrimSpace(pref)
	switch pref {
	case "", NotifyNone:
		return NotifyNone, nil
	case NotifyAll:
		return NotifyAll, nil
	}
	emails, err := models.TeamEmails(ctx, s.db, teamID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(emails, pref) {
		return "", srverr.Validation("notify_emails", "Not an address on your team.")
	}
	return pref, nil
}

// RequestHint files a hint on an unlocked puzzle.
//
// When the relevant hint pool is empty but a free answer is left, one free answer is traded for one
// hint in the same transaction that files the hint.
func (s *Service) RequestHint(ctx context.Context, rc *requestctx.Context, slug string, req HintRequest) (*models.Hint, error) {
	ctx, span := tracer.Start(ctx, "RequestHint")
	defer span.End()

	span.SetAttributes(attribute.String("puzzle.slug", slug), attribute.Bool("followup", req.IsFollowup))

	fail := func(err error) (*models.Hint, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hint request rejected")
		return nil, err
	}

	team, err := requireTeam(rc)
	if err != nil {
		return fail(err)
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return fail(srverr.Validation("question", "Please describe what you've tried so far."))
	}

	p, err := unlockedPuzzle(ctx, rc, slug)
	if err != nil {
		return fail(err)
	}
	cat, err := rc.Catalog(ctx)
	if err != nil {
		return fail(err)
	}

	target, err := s.notifyTarget(ctx, team.ID, req.NotifyEmails)
	if err != nil {
		return fail(err)
	}

	h := &models.Hint{
		TeamID:            team.ID,
		PuzzleID:          p.ID,
		IsFollowup:        req.IsFollowup,
		HintQuestion:      question,
		NotifyEmails:      target,
		SubmittedDatetime: rc.Now(),
		Status:            hints.NoResponse,
	}

	// The team row lock serializes every request spending this team's hints, so the gate below sees
	// the hints and conversions of any request that got there first.
	var decision quota.Decision
	var locked *models.Team
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		locked, err = models.LockTeam(ctx, tx, team.ID)
		if err != nil {
			return err
		}
		txc := rc.InTx(tx, locked)
		history, err := txc.HintHistory(ctx)
		if err != nil {
			return err
		}
		q, err := txc.Quota(ctx)
		if err != nil {
			return err
		}
		decision, err = quota.Gate(ctx, s.rules, txc, q, history, quota.Request{
			PuzzleID:   p.ID,
			IsIntro:    cat.IsIntro(p),
			IsFollowup: req.IsFollowup,
		})
		if err != nil {
			return err
		}
		if decision.ConvertFreeAnswer {
			if err := models.ConvertFreeAnswerToHint(ctx, tx, team.ID); err != nil {
				return err
			}
		}
		return models.CreateHint(ctx, tx, h)
	})
	if err != nil {
		if errors.Is(err, models.ErrNoFreeAnswerToConvert) {
			return fail(srverr.Policy(srverr.CodeNoFreeAnswers, "You have no free answers to use."))
		}
		return fail(err)
	}

	if decision.ConvertFreeAnswer {
		// the counters moved; drop the stale row from the request
		updated := *locked
		updated.TotalHintsAwarded++
		updated.TotalFreeAnswersAwarded--
		rc.Reload(&updated)
	} else {
		rc.Reload(locked)
	}

	audit.LogHintRequested(s.auditContext(team.ID, p.Slug), h.ID.String(), h.IsFollowup, decision.ConvertFreeAnswer)
	s.notifier.Alert(ctx, notify.ChannelHints, notify.HintRequestAlert(h.IsFollowup, p.Emoji, p.Name, team.TeamName, question))
	s.notifier.StaffHint(ctx, notify.HintUpdate{
		HintID:     h.ID,
		TeamName:   team.TeamName,
		PuzzleName: p.Name,
		Status:     hints.NoResponse.Label(),
	})

	span.SetAttributes(attribute.String("hint.id", h.ID.String()), attribute.Bool("converted", decision.ConvertFreeAnswer))
	span.SetStatus(codes.Ok, "filed hint")
	return h, nil
}

// ClaimHint assigns an open hint to claimer. A hint held by someone else is a hint_claimed conflict;
// reclaiming one's own claim succeeds.
func (s *Service) ClaimHint(ctx context.Context, id uuid.UUID, claimer string, now time.Time) (*models.Hint, error) {
	ctx, span := tracer.Start(ctx, "ClaimHint")
	defer span.End()

	span.SetAttributes(attribute.String("hint.id", id.String()), attribute.String("claimer", claimer))

	if strings.TrimSpace(claimer) == "" {
		return nil, srverr.Validation("claimer", "A claimer is required.")
	}

	h, won, err := models.ClaimHint(ctx, s.db, id, claimer, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim hint")
		if isNotFound(err) {
			return nil, srverr.ErrNotFound
		}
		return nil, err
	}
	if !won {
		span.SetStatus(codes.Ok, "claim lost")
		if h.Status != hints.NoResponse {
			return h, srverr.Policy(srverr.CodeHintResolved, "This hint is already %s.", strings.ToLower(h.Status.Label()))
		}
		return h, srverr.Policy(srverr.CodeHintClaimed, "This hint is already claimed by %s.", h.Claimer)
	}

	audit.LogHintClaimed(s.auditContext(h.TeamID, puzzleSlug(h)), h.ID.String(), claimer)
	s.notifier.Alert(ctx, notify.ChannelHints, notify.HintClaimedAlert(puzzleName(h), teamName(h), claimer))
	s.notifier.StaffHint(ctx, notify.HintUpdate{
		HintID:     h.ID,
		TeamName:   teamName(h),
		PuzzleName: puzzleName(h),
		Status:     h.Status.Label(),
		Claimer:    h.Claimer,
	})

	span.SetStatus(codes.Ok, "claimed hint")
	return h, nil
}

// UnclaimHint releases a claim on a hint that is still open.
func (s *Service) UnclaimHint(ctx context.Context, id uuid.UUID) (*models.Hint, error) {
	ctx, span := tracer.Start(ctx, "UnclaimHint")
	defer span.End()

	h, ok, err := models.UnclaimHint(ctx, s.db, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unclaim hint")
		if isNotFound(err) {
			return nil, srverr.ErrNotFound
		}
		return nil, err
	}
	if !ok {
		return h, srverr.Policy(srverr.CodeHintResolved, "This hint is already %s.", strings.ToLower(h.Status.Label()))
	}

	s.notifier.StaffHint(ctx, notify.HintUpdate{
		HintID:     h.ID,
		TeamName:   teamName(h),
		PuzzleName: puzzleName(h),
		Status:     h.Status.Label(),
	})

	span.SetStatus(codes.Ok, "unclaimed hint")
	return h, nil
}

type HintAnswer struct {
	// the status the responder saw when they started writing
	InitialStatus string `json:"initial_status" validate:"required"`
	Status        string `json:"status" validate:"required"`
	Response      string `json:"response"`
}

// AnswerHint moves a hint out of NO_RESPONSE. If the stored status is no longer the one the responder
// saw the edit is rejected with status_changed. A non-empty response mails the team.
func (s *Service) AnswerHint(
	ctx context.Context,
	id uuid.UUID,
	answer HintAnswer,
	responder string,
	now time.Time,
) (*models.Hint, error) {
	ctx, span := tracer.Start(ctx, "AnswerHint")
	defer span.End()

	span.SetAttributes(attribute.String("hint.id", id.String()), attribute.String("responder", responder))

	fail := func(err error) (*models.Hint, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hint answer rejected")
		return nil, err
	}

	expected, err := hints.Parse(answer.InitialStatus)
	if err != nil {
		return fail(srverr.Validation("initial_status", err.Error()))
	}
	status, err := hints.Parse(answer.Status)
	if err != nil {
		return fail(srverr.Validation("status", err.Error()))
	}
	if !hints.CanTransition(expected, status) {
		return fail(srverr.Policy(
			srverr.CodeHintResolved,
			"A hint can only move from %s to a final status.",
			hints.NoResponse,
		))
	}

	h, ok, err := models.ResolveHint(ctx, s.db, id, models.Resolution{
		Expected:  expected,
		Status:    status,
		Response:  answer.Response,
		Responder: responder,
		At:        now,
	})
	if err != nil {
		if isNotFound(err) {
			return fail(srverr.ErrNotFound)
		}
		return fail(err)
	}
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "status changed")
		return h, srverr.Policy(
			srverr.CodeStatusChanged,
			"Oh no! The status of this hint changed. Likely either someone else answered it, or the team "+
				"solved the puzzle. You may wish to copy your text and reload.",
		)
	}

	s.count(ctx, s.transitions, attribute.String("status", status.String()))
	audit.LogHintResolved(s.auditContext(h.TeamID, puzzleSlug(h)), h.ID.String(), status.String(), responder)
	s.notifier.Alert(ctx, notify.ChannelHints, notify.HintResolvedAlert(puzzleName(h), teamName(h), status.Label(), responder))
	s.notifier.StaffHint(ctx, notify.HintUpdate{
		HintID:     h.ID,
		Cleared:    true,
		TeamName:   teamName(h),
		PuzzleName: puzzleName(h),
		Status:     status.Label(),
		Claimer:    h.Claimer,
	})

	if strings.TrimSpace(h.Response) != "" {
		s.mailHintAnswered(ctx, h)
		s.notifier.Notify(ctx, notify.HintAnsweredEvent(h.TeamID, puzzleSlug(h), puzzleName(h), now))
	}

	span.SetStatus(codes.Ok, "answered hint")
	return h, nil
}

func (s *Service) mailHintAnswered(ctx context.Context, h *models.Hint) {
	var recipients []string
	switch h.NotifyEmails {
	case NotifyNone, "":
	case NotifyAll:
		emails, err := models.TeamEmails(ctx, s.db, h.TeamID)
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to load team emails", "error", err)
			s.notifier.Alert(ctx, notify.ChannelGeneral, fmt.Sprintf("Could not mail hint answer %s: %s", h.ID, err))
			return
		}
		recipients = emails
	default:
		recipients = []string{h.NotifyEmails}
	}
	if len(recipients) == 0 {
		return
	}

	link := strings.TrimRight(s.domain, "/") + "/puzzle/" + puzzleSlug(h) + "/hints"
	s.notifier.Mail(ctx, notify.Mail{
		Subject:    fmt.Sprintf("Hint answered for %s", puzzleName(h)),
		TemplateID: notify.TemplateHintAnswered,
		Data: map[string]any{
			"TeamName":   teamName(h),
			"PuzzleName": puzzleName(h),
			"Question":   h.HintQuestion,
			"Response":   h.Response,
			"Link":       link,
			"HuntTitle":  s.rules.Title,
		},
		Recipients: recipients,
	})
}

// StaffHints is the open hint queue and how many of them nobody has claimed.
type StaffHints struct {
	Open      []models.Hint `json:"open"`
	Unclaimed int64         `json:"unclaimed"`
}

func (s *Service) OpenHints(ctx context.Context) (*StaffHints, error) {
	ctx, span := tracer.Start(ctx, "OpenHints")
	defer span.End()

	open, err := models.OpenHints(ctx, s.db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list open hints")
		return nil, err
	}
	unclaimed, err := models.CountUnclaimedHints(ctx, s.db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count unclaimed hints")
		return nil, err
	}

	span.SetStatus(codes.Ok, "listed open hints")
	return &StaffHints{Open: open, Unclaimed: unclaimed}, nil
}

func puzzleSlug(h *models.Hint) string {
	if h.Puzzle == nil {
		return ""
	}
	return h.Puzzle.Slug
}

func puzzleName(h *models.Hint) string {
	if h.Puzzle == nil {
		return h.PuzzleID.String()
	}
	return h.Puzzle.Name
}

func teamName(h *models.Hint) string {
	if h.Team == nil {
		return h.TeamID.String()
	}
	return h.Team.TeamName
}
