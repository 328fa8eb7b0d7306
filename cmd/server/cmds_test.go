package main

import (
	"net/http"

	"github.com/puzzlehunt/huntserver/cmd/server/internal/models"
	"github.com/puzzlehunt/huntserver/cmd/server/internal/puzzlefile"
)

const extraCatalog = `
rounds:
  - slug: intro
    name: Introduction
puzzles:
  - slug: sample
    name: Sample Puzzle Revised
    answer: SAMPLE ANSWER
    round: intro
    unlock_hours: 0
    feeds: [intro-meta]
  - slug: bonus
    name: Bonus
    answer: BONUS
    round: intro
    order: 9
    unlock_hours: 0
  - slug: intro-meta
    name: Intro Meta
    answer: META
    round: intro
    is_meta: true
    unlock_local: 2
`

func (s *ServerTestSuite) Test_ImportCatalogFile() {
	ctx := s.T().Context()

	file, err := puzzlefile.Parse(ctx, []byte(extraCatalog))
	s.Require().NoError(err)

	rounds, puzzles := file.Specs()
	s.Require().NoError(models.ImportCatalog(ctx, s.tx, rounds, puzzles))

	resp := s.call(http.MethodGet, "/v1/puzzles/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code)

	var listed []map[string]any
	s.decode(resp, &listed)

	names := make(map[string]any, len(listed))
	for _, p := range listed {
		names[p["slug"].(string)] = p["name"]
		s.Equal("Introduction", p["round"], "round names are upserted by slug")
	}
	s.Equal("Sample Puzzle Revised", names["sample"])
	s.Contains(names, "bonus")

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/solve/", s.auth, `{"answer": "sample"}`)
	s.Require().Equal(http.StatusOK, resp.code)

	body := make(map[string]any)
	s.decode(resp, &body)
	s.Equal("incorrect", body["status"], "canned messages are replaced on import")
}
