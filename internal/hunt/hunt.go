// Package hunt holds the static parameters of a hunt and the time arithmetic derived from them.
package hunt

import (
	"time"

	"github.com/puzzlehunt/huntserver/internal/config"
)

type Scheme string

const (
	SchemeCounting Scheme = "counting"
	SchemeDeep     Scheme = "deep"
)

// Per-interval credit schedule for hints or free answers.
type Accrual struct {
	Enabled     bool
	PerInterval []int
	Interval    time.Duration
	StartTime   time.Time
	MinTeamAge  time.Duration
}

type Rules struct {
	Title             string
	Start             time.Time
	End               time.Time
	Close             time.Time
	Scheme            Scheme
	MaxGuesses        int
	MaxMembersPerTeam int
	IntroRoundSlug    string
	MetaMetaSlug      string
	IntroHints        int
	OneHintAtATime    bool
	SurveysEnabled    bool
	Hints             Accrual
	FreeAnswers       Accrual
}

func accrualFromConfig(c config.AccrualConfig) Accrual {
	return Accrual{
		Enabled:     c.Enabled,
		PerInterval: append([]int(nil), c.PerInterval...),
		Interval:    c.Interval,
		StartTime:   c.StartTime,
		MinTeamAge:  c.MinTeamAge,
	}
}

func FromConfig(c *config.HuntConfig) Rules {
	return Rules{
		Title:             c.Title,
		Start:             c.StartTime,
		End:               c.EndTime,
		Close:             c.CloseTime,
		Scheme:            Scheme(c.UnlockScheme),
		MaxGuesses:        c.MaxGuesses,
		MaxMembersPerTeam: c.MaxMembersPerTeam,
		IntroRoundSlug:    c.IntroRoundSlug,
		MetaMetaSlug:      c.MetaMetaSlug,
		IntroHints:        c.IntroHints,
		OneHintAtATime:    c.OneHintAtATime,
		SurveysEnabled:    c.SurveysEnabled,
		Hints:             accrualFromConfig(c.Hints),
		FreeAnswers:       accrualFromConfig(c.FreeAnswers),
	}
}

// Effective start for a team; a positive offset lets the team in early.
func (r Rules) StartFor(offset time.Duration) time.Time {
	return r.Start.Add(-offset)
}

func (r Rules) IsOver(now time.Time) bool {
	return !now.Before(r.End)
}

func (r Rules) IsClosed(now time.Time) bool {
	return !now.Before(r.Close)
}

// floorDiv rounds toward negative infinity, unlike integer division on durations.
func floorDiv(d time.Duration, unit time.Duration) int64 {
	q := int64(d / unit)
	if d%unit != 0 && (d < 0) != (unit < 0) {
		q--
	}
	return q
}

// Intervals elapsed since the schedule started for a team, counting the starting interval as one.
func (a Accrual) Elapsed(offset time.Duration, now time.Time) int {
	if a.Interval <= 0 {
		return 0
	}
	n := floorDiv(now.Sub(a.StartTime.Add(-offset)), a.Interval) + 1
	if n < 0 {
		return 0
	}
	if n > int64(len(a.PerInterval)) {
		return len(a.PerInterval)
	}
	return int(n)
}

// Scheduled credits accrued by now, excluding manual awards.
func (a Accrual) Scheduled(offset time.Duration, now time.Time) int {
	total := 0
	for _, v := range a.PerInterval[:a.Elapsed(offset, now)] {
		total += v
	}
	return total
}

// Total credits a team holds: manual awards plus the schedule, subject to the feature flag, the
// minimum team age and the end of the hunt.
func (r Rules) Total(a Accrual, awarded int, created time.Time, offset time.Duration, now time.Time) int {
	if !a.Enabled || r.IsOver(now) {
		return 0
	}
	if now.Before(created.Add(a.MinTeamAge)) {
		return awarded
	}
	return awarded + a.Scheduled(offset, now)
}
