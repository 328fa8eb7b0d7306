package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func (s *ServerTestSuite) Test_Health() {
	r := s.call(http.MethodGet, "/health/", nil, "")
	s.Equal(http.StatusOK, r.code)
}

func (s *ServerTestSuite) Test_Ping() {
	tests := []struct {
		name           string
		auth           *clientAuth
		bodyTester     func(t *testing.T, body map[string]any)
		expectedStatus int
	}{
		{
			name:           "Valid",
			auth:           &clientAuth{s.team.ID.String(), authToken},
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "ready", body["status"])
				assert.Equal(t, s.team.ID.String(), body["team_id"])
			},
		},
		{
			name:           "NoAuth",
			expectedStatus: http.StatusUnauthorized,
			bodyTester:     unauthorizedBodyTester,
		},
		{
			name:           "WrongToken",
			auth:           &clientAuth{s.team.ID.String(), "not the token"},
			expectedStatus: http.StatusUnauthorized,
			bodyTester:     unauthorizedBodyTester,
		},
		{
			name:           "NotAUUID",
			auth:           &clientAuth{"Testers", authToken},
			expectedStatus: http.StatusUnauthorized,
			bodyTester:     unauthorizedBodyTester,
		},
		{
			name:           "StaffKeyIsNotATeam",
			auth:           &clientAuth{deskID.String(), staffToken},
			expectedStatus: http.StatusForbidden,
			bodyTester:     forbiddenBodyTester,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(http.MethodGet, "/v1/ping/", tt.auth, "")

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			body := make(map[string]any)
			s.Require().NoError(json.Unmarshal([]byte(resp.body), &body))

			tt.bodyTester(s.T(), body)
		})
	}
}

func (s *ServerTestSuite) Test_Register() {
	tests := []struct {
		name           string
		payload        string
		bodyTester     func(t *testing.T, body map[string]any)
		expectedStatus int
	}{
		{
			name:           "Valid",
			payload:        `{"team_name": "Newcomers", "members": [{"name": "Cy", "email": "cy@example.com"}]}`,
			expectedStatus: http.StatusCreated,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Newcomers", body["team_name"])
				assert.NotEmpty(t, body["token"])
				assert.NotEmpty(t, body["team_id"])
			},
		},
		{
			name:           "NameTaken",
			payload:        `{"team_name": "Testers", "members": [{"name": "Cy"}]}`,
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body map[string]any) {
				assertErrorBodyWithFields(t, body)
				assert.Contains(t, body["fields"], "team_name")
			},
		},
		{
			name:           "NoMembers",
			payload:        `{"team_name": "Lonely", "members": []}`,
			expectedStatus: http.StatusBadRequest,
			bodyTester:     assertErrorBodyWithFields,
		},
		{
			name:           "BadEmail",
			payload:        `{"team_name": "Typos", "members": [{"name": "Cy", "email": "not an email"}]}`,
			expectedStatus: http.StatusBadRequest,
			bodyTester:     assertErrorBodyWithFields,
		},
		{
			name: "TooManyMembers",
			payload: `{"team_name": "Crowd", "members": [` +
				`{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}]}`,
			expectedStatus: http.StatusConflict,
			bodyTester:     codeBodyTester("team_full"),
		},
		{
			name:           "Malformed",
			payload:        `{"team_name": `,
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "failed to parse request data", body["message"])
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(http.MethodPost, "/register/", nil, tt.payload)

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			body := make(map[string]any)
			s.Require().NoError(json.Unmarshal([]byte(resp.body), &body))

			tt.bodyTester(s.T(), body)
		})
	}
}

func (s *ServerTestSuite) Test_RegisteredTeamCanLogIn() {
	resp := s.call(
		http.MethodPost,
		"/register/",
		nil,
		`{"team_name": "Newcomers", "members": [{"name": "Cy"}]}`,
	)
	s.Require().Equal(http.StatusCreated, resp.code)

	var registered struct {
		TeamID string `json:"team_id"`
		Token  string `json:"token"`
	}
	s.decode(resp, &registered)

	resp = s.call(http.MethodGet, "/v1/ping/", &clientAuth{registered.TeamID, registered.Token}, "")
	s.Equal(http.StatusOK, resp.code)
}

func (s *ServerTestSuite) Test_Puzzles() {
	resp := s.call(http.MethodGet, "/v1/puzzles/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code)

	var puzzles []map[string]any
	s.decode(resp, &puzzles)
	s.Require().Len(puzzles, 1, "only the hour zero puzzle is open an hour in")
	s.Equal("sample", puzzles[0]["slug"])
	s.Equal("Intro", puzzles[0]["round"])
	s.NotContains(puzzles[0], "answer")
}

func (s *ServerTestSuite) Test_Puzzle() {
	tests := []struct {
		name           string
		slug           string
		bodyTester     func(t *testing.T, body map[string]any)
		expectedStatus int
	}{
		{
			name:           "Unlocked",
			slug:           "sample",
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Sample Puzzle", body["name"])
				assert.EqualValues(t, 20, body["guesses_remaining"])
			},
		},
		{
			name:           "Locked",
			slug:           "second",
			expectedStatus: http.StatusForbidden,
			bodyTester:     codeBodyTester("not_unlocked"),
		},
		{
			name:           "Unknown",
			slug:           "no-such-puzzle",
			expectedStatus: http.StatusNotFound,
			bodyTester:     notFoundBodyTester,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(http.MethodGet, fmt.Sprintf("/v1/puzzle/%s/", tt.slug), s.auth, "")

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			body := make(map[string]any)
			s.Require().NoError(json.Unmarshal([]byte(resp.body), &body))

			tt.bodyTester(s.T(), body)
		})
	}
}

// Subtests run in order against the same transaction.
func (s *ServerTestSuite) Test_Solve() {
	tests := []struct {
		name           string
		slug           string
		answer         string
		bodyTester     func(t *testing.T, body map[string]any)
		expectedStatus int
	}{
		{
			name:           "Locked",
			slug:           "second",
			answer:         "SECOND",
			expectedStatus: http.StatusForbidden,
			bodyTester:     codeBodyTester("not_unlocked"),
		},
		{
			name:           "Incorrect",
			slug:           "sample",
			answer:         "wrong guess",
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "incorrect", body["status"])
				assert.Equal(t, false, body["correct"])
				assert.EqualValues(t, 19, body["guesses_remaining"])
			},
		},
		{
			name:           "AlreadyTried",
			slug:           "sample",
			answer:         "Wrong Guess!",
			expectedStatus: http.StatusConflict,
			bodyTester:     codeBodyTester("already_tried"),
		},
		{
			name:           "CannedMessage",
			slug:           "sample",
			answer:         "sample",
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "message", body["status"])
				assert.Equal(t, "Keep going!", body["message"])
			},
		},
		{
			name:           "NoLetters",
			slug:           "sample",
			answer:         "123 !?",
			expectedStatus: http.StatusBadRequest,
			bodyTester: func(t *testing.T, body map[string]any) {
				assertErrorBodyWithFields(t, body)
				assert.Contains(t, body["fields"], "answer")
			},
		},
		{
			name:           "Correct",
			slug:           "sample",
			answer:         "sample answer",
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "correct", body["status"])
				assert.Equal(t, true, body["correct"])
				assert.Equal(t, "SAMPLEANSWER", body["answer"])
			},
		},
		{
			name:           "AlreadySolved",
			slug:           "sample",
			answer:         "sample answer",
			expectedStatus: http.StatusConflict,
			bodyTester:     codeBodyTester("already_solved"),
		},
		{
			name:           "UnlockedBySolve",
			slug:           "second",
			answer:         "nope",
			expectedStatus: http.StatusOK,
			bodyTester: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "incorrect", body["status"])
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.call(
				http.MethodPost,
				fmt.Sprintf("/v1/puzzle/%s/solve/", tt.slug),
				s.auth,
				fmt.Sprintf(`{"answer": %q}`, tt.answer),
			)

			s.Equal(tt.expectedStatus, resp.code, "incorrect status code")
			body := make(map[string]any)
			s.Require().NoError(json.Unmarshal([]byte(resp.body), &body))

			tt.bodyTester(s.T(), body)
		})
	}

	s.Run("SolveLog", func() {
		resp := s.call(http.MethodGet, "/v1/team/solves/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var solves []map[string]any
		s.decode(resp, &solves)
		s.Require().Len(solves, 1)
		s.Equal("sample", solves[0]["slug"])
		s.Equal(false, solves[0]["free_answer"])
	})

	s.Run("Progress", func() {
		resp := s.call(http.MethodGet, "/v1/team/progress/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)

		body := make(map[string]any)
		s.decode(resp, &body)
		s.EqualValues(2, body["unlocked"])
	})

	s.Run("Leaderboard", func() {
		resp := s.call(http.MethodGet, "/leaderboard/", nil, "")
		s.Require().Equal(http.StatusOK, resp.code)

		var board struct {
			Rows []struct {
				TeamName    string `json:"team_name"`
				TotalSolves int    `json:"total_solves"`
				Rank        int    `json:"rank"`
			} `json:"rows"`
			ViewerRank int `json:"viewer_rank"`
		}
		s.decode(resp, &board)
		s.Require().Len(board.Rows, 2)
		s.Equal("Testers", board.Rows[0].TeamName)
		s.Equal(1, board.Rows[0].TotalSolves)
		s.Equal(1, board.Rows[0].Rank)
		s.Zero(board.ViewerRank, "anonymous viewers have no rank")

		resp = s.call(http.MethodGet, "/v1/leaderboard/", s.auth, "")
		s.Require().Equal(http.StatusOK, resp.code)
		s.decode(resp, &board)
		s.Equal(1, board.ViewerRank)
	})
}

func (s *ServerTestSuite) Test_FreeAnswer() {
	resp := s.call(http.MethodPost, "/v1/puzzle/sample/free-answer/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code, resp.body)

	body := make(map[string]any)
	s.decode(resp, &body)
	s.Equal("correct", body["status"])

	resp = s.call(http.MethodGet, "/v1/team/quota/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code)

	quota := make(map[string]any)
	s.decode(resp, &quota)
	s.EqualValues(1, quota["free_answers_used"])
	s.EqualValues(0, quota["free_answers_remaining"])

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/free-answer/", s.auth, "")
	s.Equal(http.StatusConflict, resp.code)
}

func (s *ServerTestSuite) Test_Survey() {
	resp := s.call(http.MethodPost, "/v1/puzzle/sample/survey/", s.auth, `{"fun": 5, "difficulty": 2}`)
	s.Equal(http.StatusConflict, resp.code, "surveys need a solve first")

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/solve/", s.auth, `{"answer": "SAMPLE ANSWER"}`)
	s.Require().Equal(http.StatusOK, resp.code)

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/survey/", s.auth, `{"fun": 9, "difficulty": 2}`)
	s.Equal(http.StatusBadRequest, resp.code)

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/survey/", s.auth, `{"fun": 5, "difficulty": 2, "comments": "nice"}`)
	s.Equal(http.StatusNoContent, resp.code)
}

func (s *ServerTestSuite) Test_Hints() {
	resp := s.call(http.MethodGet, "/v1/puzzle/sample/hints/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code)

	var thread struct {
		Hints                  []map[string]any `json:"hints"`
		CanFollowup            bool             `json:"can_followup"`
		RelevantHintsRemaining int              `json:"relevant_hints_remaining"`
	}
	s.decode(resp, &thread)
	s.Empty(thread.Hints)
	s.Positive(thread.RelevantHintsRemaining)

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/hints/", s.auth, `{"question": ""}`)
	s.Equal(http.StatusBadRequest, resp.code)

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/hints/", s.auth, `{"question": "Where do we start?"}`)
	s.Require().Equal(http.StatusCreated, resp.code, resp.body)

	hint := make(map[string]any)
	s.decode(resp, &hint)
	s.Equal("NR", hint["status"])
	s.Equal("sample", hint["puzzle"])
	s.Equal("Where do we start?", hint["question"])

	resp = s.call(http.MethodPost, "/v1/puzzle/sample/hints/", s.auth, `{"question": "And then?"}`)
	s.Equal(http.StatusConflict, resp.code)

	resp = s.call(http.MethodPost, "/v1/puzzle/second/hints/", s.auth, `{"question": "Locked?"}`)
	s.Equal(http.StatusForbidden, resp.code)

	resp = s.call(http.MethodGet, "/v1/puzzle/sample/hints/", s.auth, "")
	s.Require().Equal(http.StatusOK, resp.code)
	s.decode(resp, &thread)
	s.Len(thread.Hints, 1)
	s.False(thread.CanFollowup, "nothing answered yet")
}
