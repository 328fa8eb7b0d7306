package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// Files a hint as the logged in team and returns its id.
func (s *ServerTestSuite) fileHint(question string) string {
	resp := s.call(
		http.MethodPost,
		"/v1/puzzle/sample/hints/",
		s.auth,
		fmt.Sprintf(`{"question": %q}`, question),
	)
	s.Require().Equal(http.StatusCreated, resp.code, resp.body)

	hint := make(map[string]any)
	s.decode(resp, &hint)
	id, ok := hint["id"].(string)
	s.Require().True(ok, "hint has an id")
	return id
}

func (s *ServerTestSuite) Test_StaffAuth() {
	tests := []struct {
		name           string
		auth           *clientAuth
		bodyTester     func(t *testing.T, body map[string]any)
		expectedStatus int
	}{
		{
			name:           "Staff",
			auth:           &clientAuth{deskID.String(), staffToken},
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Contains(t, body, "unclaimed")
			},
		},
		{
			name:           "Team",
			auth:           &clientAuth{s.team.ID.String(), authToken},
			expectedStatus: http.StatusForbidden,
			bodyTester:     forbiddenBodyTester,
		},
		{
			name:           "NoAuth",
			expectedStatus: http.StatusUnauthorized,
			bodyTester:     unauthorizedBodyTester,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(http.MethodGet, "/staff/hints/", tt.auth, "")

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			body := make(map[string]any)
			s.Require().NoError(json.Unmarshal([]byte(resp.body), &body))

			tt.bodyTester(s.T(), body)
		})
	}
}

func (s *ServerTestSuite) Test_StaffHintFlow() {
	id := s.fileHint("Is the first word important?")
	hintPath := func(action string) string {
		return fmt.Sprintf("/staff/hint/%s/%s/", id, action)
	}

	s.Run("Open", func() {
		resp := s.call(http.MethodGet, "/staff/hints/", s.desk, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var open struct {
			Unclaimed int              `json:"unclaimed"`
			Open      []map[string]any `json:"open"`
		}
		s.decode(resp, &open)
		s.Equal(1, open.Unclaimed)
		s.Require().Len(open.Open, 1)
		s.Equal(id, open.Open[0]["id"])
		s.Equal("Testers", open.Open[0]["team"])
	})

	s.Run("Claim", func() {
		resp := s.call(http.MethodPost, hintPath("claim"), s.desk, "")
		s.Require().Equal(http.StatusOK, resp.code, resp.body)

		body := make(map[string]any)
		s.decode(resp, &body)
		s.Equal("Hint Desk", body["claimer"])
		s.Contains(body, "claimed_at")
	})

	s.Run("ClaimAgainBySameStaff", func() {
		resp := s.call(http.MethodPost, hintPath("claim"), s.desk, "")
		s.Equal(http.StatusOK, resp.code)
	})

	s.Run("ClaimedByOther", func() {
		resp := s.call(http.MethodPost, hintPath("claim"), s.other, "")
		s.Equal(http.StatusConflict, resp.code)

		body := make(map[string]any)
		s.decode(resp, &body)
		codeBodyTester("hint_claimed")(s.T(), body)
	})

	s.Run("Unclaim", func() {
		resp := s.call(http.MethodPost, hintPath("unclaim"), s.desk, "")
		s.Require().Equal(http.StatusOK, resp.code)

		body := make(map[string]any)
		s.decode(resp, &body)
		s.NotContains(body, "claimer")

		resp = s.call(http.MethodPost, hintPath("claim"), s.other, "")
		s.Equal(http.StatusOK, resp.code, "released hints can be picked up by anyone")
	})

	s.Run("AnswerBadStatus", func() {
		resp := s.call(
			http.MethodPost,
			hintPath("answer"),
			s.other,
			`{"initial_status": "NR", "status": "MAYBE", "response": "?"}`,
		)
		s.Equal(http.StatusBadRequest, resp.code)
	})

	s.Run("AnswerMissingStatus", func() {
		resp := s.call(http.MethodPost, hintPath("answer"), s.other, `{"response": "?"}`)
		s.Equal(http.StatusBadRequest, resp.code)

		body := make(map[string]any)
		s.decode(resp, &body)
		assertErrorBodyWithFields(s.T(), body)
	})

	s.Run("Answer", func() {
		resp := s.call(
			http.MethodPost,
			hintPath("answer"),
			s.other,
			`{"initial_status": "NR", "status": "ANS", "response": "Look at the first letters."}`,
		)
		s.Require().Equal(http.StatusOK, resp.code, resp.body)

		body := make(map[string]any)
		s.decode(resp, &body)
		s.Equal("ANS", body["status"])
		s.Equal("Look at the first letters.", body["response"])
		s.Contains(body, "answered_at")
	})

	s.Run("AnswerStale", func() {
		resp := s.call(
			http.MethodPost,
			hintPath("answer"),
			s.desk,
			`{"initial_status": "NR", "status": "REF", "response": ""}`,
		)
		s.Equal(http.StatusConflict, resp.code)
	})

	s.Run("TeamSeesAnswer", func() {
		resp := s.call(http.MethodGet, "/v1/puzzle/sample/hints/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var thread struct {
			Hints       []map[string]any `json:"hints"`
			CanFollowup bool             `json:"can_followup"`
		}
		s.decode(resp, &thread)
		s.Require().Len(thread.Hints, 1)
		s.Equal("ANS", thread.Hints[0]["status"])
		s.True(thread.CanFollowup)
	})

	s.Run("Followup", func() {
		resp := s.call(
			http.MethodPost,
			"/v1/puzzle/sample/hints/",
			s.auth,
			`{"question": "Which first letters?", "is_followup": true}`,
		)
		s.Require().Equal(http.StatusCreated, resp.code, resp.body)

		body := make(map[string]any)
		s.decode(resp, &body)
		s.Equal(true, body["is_followup"])
	})

	s.Run("NoSuchHint", func() {
		resp := s.call(http.MethodPost, fmt.Sprintf("/staff/hint/%s/claim/", uuid.New()), s.desk, "")
		s.Equal(http.StatusNotFound, resp.code)

		resp = s.call(http.MethodPost, "/staff/hint/not-an-id/claim/", s.desk, "")
		s.Equal(http.StatusNotFound, resp.code)
	})
}

func (s *ServerTestSuite) Test_ListShortcuts() {
	tests := []struct {
		name           string
		query          string
		bodyTester     func(t *testing.T, body []byte)
		expectedStatus int
	}{
		{
			name:           "Team",
			query:          fmt.Sprintf("team_id=%s", s.team.ID),
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body []byte) {
				var items []map[string]any
				assert.NoError(t, json.Unmarshal(body, &items))
				assert.Contains(t, actions(items), "prerelease_testsolver")
				assert.NotContains(t, actions(items), "solve")
			},
		},
		{
			name:           "TeamAndPuzzle",
			query:          fmt.Sprintf("team_id=%s&puzzle=sample", s.team.ID),
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body []byte) {
				var items []map[string]any
				assert.NoError(t, json.Unmarshal(body, &items))
				assert.Contains(t, actions(items), "solve")
				assert.Contains(t, actions(items), "delete_guesses")
			},
		},
		{
			name:           "BadTeam",
			query:          "team_id=nope",
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "team_id")
			},
		},
		{
			name:           "UnknownTeam",
			query:          fmt.Sprintf("team_id=%s", uuid.New()),
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "team_id")
			},
		},
		{
			name:           "UnknownPuzzle",
			query:          fmt.Sprintf("team_id=%s&puzzle=nope", s.team.ID),
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body []byte) {
				assert.Contains(t, string(body), "puzzle")
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(http.MethodGet, "/staff/shortcuts/?"+tt.query, s.desk, "")

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			tt.bodyTester(s.T(), []byte(resp.body))
		})
	}
}

func actions(items []map[string]any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if a, ok := it["action"].(string); ok {
			out = append(out, a)
		}
	}
	return out
}

func (s *ServerTestSuite) Test_RunShortcut() {
	run := func(action string, payload string) *resp {
		return s.call(http.MethodPost, fmt.Sprintf("/staff/shortcuts/%s/", action), s.desk, payload)
	}
	teamOnly := fmt.Sprintf(`{"team_id": %q}`, s.team.ID)
	teamAndPuzzle := fmt.Sprintf(`{"team_id": %q, "puzzle": "sample"}`, s.team.ID)

	s.Run("Unbound", func() {
		resp := run("solve", teamOnly)
		s.Equal(http.StatusConflict, resp.code)

		body := make(map[string]any)
		s.decode(resp, &body)
		codeBodyTester("shortcut_unbound")(s.T(), body)
	})

	s.Run("Unknown", func() {
		resp := run("launch_rockets", teamOnly)
		s.Equal(http.StatusBadRequest, resp.code)
	})

	s.Run("AwardHints", func() {
		s.Require().Equal(http.StatusNoContent, run("hint_5", teamOnly).code)

		resp := s.call(http.MethodGet, "/v1/team/quota/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		quota := make(map[string]any)
		s.decode(resp, &quota)
		s.EqualValues(7, quota["hints_total"], "two scheduled plus five awarded")

		s.Require().Equal(http.StatusNoContent, run("reset_hints", teamOnly).code)

		resp = s.call(http.MethodGet, "/v1/team/quota/", s.auth, "")
		s.decode(resp, &quota)
		s.EqualValues(2, quota["hints_total"])
	})

	s.Run("ForceSolve", func() {
		s.Require().Equal(http.StatusNoContent, run("solve", teamAndPuzzle).code)

		resp := s.call(http.MethodGet, "/v1/team/solves/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var solves []map[string]any
		s.decode(resp, &solves)
		s.Require().Len(solves, 1)
		s.Equal("sample", solves[0]["slug"])

		resp = s.call(http.MethodGet, "/v1/puzzle/second/", s.auth, "")
		s.Equal(http.StatusOK, resp.code, "the forced solve unlocks the next puzzle")
	})

	s.Run("Unsolve", func() {
		s.Require().Equal(http.StatusNoContent, run("unsolve", teamAndPuzzle).code)

		resp := s.call(http.MethodGet, "/v1/team/solves/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var solves []map[string]any
		s.decode(resp, &solves)
		s.Empty(solves)
	})
}
