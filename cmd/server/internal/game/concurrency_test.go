package game_test

import (
	"sync"
	"time"

	"go.uber.org/mock/gomock"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/game"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/game/mock"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/requestctx"
)

// committed drops the per-test transaction and seeds through the pool instead, so concurrent requests
// run on separate connections. Everything is truncated afterwards.
func (s *GameTestSuite) committed() (*game.Service, *requestctx.Factory) {
	s.tx.Rollback()
	s.T().Cleanup(func() {
		s.Require().NoError(s.db.Exec("TRUNCATE rounds, puzzles, teams CASCADE").Error)
	})
	s.seed(s.db)

	ctrl := gomock.NewController(s.T())
	quiet := mock.NewMockNotifier(ctrl)
	quiet.EXPECT().Notify(gomock.Any(), gomock.Any()).AnyTimes()
	quiet.EXPECT().Alert(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	quiet.EXPECT().Mail(gomock.Any(), gomock.Any()).AnyTimes()
	quiet.EXPECT().StaffHint(gomock.Any(), gomock.Any()).AnyTimes()

	return s.buildOn(s.db, s.rules, quiet)
}

func (s *GameTestSuite) fresh(f *requestctx.Factory, now time.Time) *requestctx.Context {
	team, err := models.ByID[models.Team](s.T().Context(), s.db, s.team.ID)
	s.Require().NoError(err)
	return f.New(team, now)
}

// race runs both calls at once and returns their errors.
func race(a, b func() error) []error {
	errs := make([]error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, fn := range []func() error{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func (s *GameTestSuite) requireOneWinner(errs []error, code srverr.PolicyCode) {
	var won, denied int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case srverr.IsPolicy(err, code):
			denied++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, won)
	s.Equal(1, denied)
}

func (s *GameTestSuite) Test_SimultaneousHintRequests() {
	ctx := s.T().Context()
	svc, factory := s.committed()
	now := s.at(time.Hour)

	// both requests are built before either runs, so both start from an empty history
	first, second := s.fresh(factory, now), s.fresh(factory, now)
	errs := race(
		func() error {
			_, err := svc.RequestHint(ctx, first, "sample", game.HintRequest{Question: "one"})
			return err
		},
		func() error {
			_, err := svc.RequestHint(ctx, second, "sample", game.HintRequest{Question: "two"})
			return err
		},
	)
	s.requireOneWinner(errs, srverr.CodeHintOpen)

	filed, err := models.TeamHints(ctx, s.db, s.team.ID)
	s.Require().NoError(err)
	s.Len(filed, 1)
}

func (s *GameTestSuite) Test_SimultaneousFreeAnswers() {
	ctx := s.T().Context()
	svc, factory := s.committed()
	now := s.at(3 * time.Hour)

	res, err := svc.SubmitAnswer(ctx, s.fresh(factory, now), "sample", "SAMPLE ANSWER")
	s.Require().NoError(err)
	s.Require().True(res.Correct)

	// one free answer has accrued; second and later are both open
	first, second := s.fresh(factory, now), s.fresh(factory, now)
	errs := race(
		func() error {
			_, err := svc.UseFreeAnswer(ctx, first, "second")
			return err
		},
		func() error {
			_, err := svc.UseFreeAnswer(ctx, second, "later")
			return err
		},
	)
	s.requireOneWinner(errs, srverr.CodeNoFreeAnswers)

	q, err := svc.TeamQuota(ctx, s.fresh(factory, now))
	s.Require().NoError(err)
	s.Equal(0, q.FreeAnswersRemaining)
}
