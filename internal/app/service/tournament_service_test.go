package service

import (
	"context"
	"testing"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTournamentService(t *testing.T) (*TournamentService, *fakeTournamentRepo, *fakeQuestionRepo, *fakeSubmissionRepo, *fakeScoreRepo, func(bool)) {
	t.Helper()
	db, mock := newTxDB(t)

	tournaments := newFakeTournamentRepo()
	questions := newFakeQuestionRepo()
	submissions := newFakeSubmissionRepo()
	submissions.hints = questions.hints
	scores := newFakeScoreRepo()

	leaderboard := NewLeaderboardService(scores, nil, 0)
	svc := NewTournamentService(tournaments, questions, submissions, scores, leaderboard, db)

	expectTx := func(commit bool) {
		if commit {
			expectTxCommit(mock)
		} else {
			expectTxRollback(mock)
		}
	}
	return svc, tournaments, questions, submissions, scores, expectTx
}

func validTournamentRequest() TournamentRequest {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return TournamentRequest{
		Name:          "spring finals",
		EnrollStart:   base,
		EnrollEnd:     base.Add(24 * time.Hour),
		EventStart:    base.Add(24 * time.Hour),
		EventEnd:      base.Add(30 * time.Hour),
		Visibility:    "public",
		TeamLimit:     16,
		TeamSizeLimit: 4,
	}
}

func TestTournamentCreate(t *testing.T) {
	t.Run("public has no join code", func(t *testing.T) {
		svc, _, _, _, _, _ := newTournamentService(t)
		tournament, err := svc.Create(context.Background(), validTournamentRequest())
		require.NoError(t, err)
		assert.Nil(t, tournament.JoinCode)
	})

	t.Run("private gets a six char join code", func(t *testing.T) {
		svc, _, _, _, _, _ := newTournamentService(t)
		req := validTournamentRequest()
		req.Visibility = "private"
		tournament, err := svc.Create(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, tournament.JoinCode)
		assert.Len(t, *tournament.JoinCode, 6)
	})

	t.Run("window ordering enforced", func(t *testing.T) {
		svc, _, _, _, _, _ := newTournamentService(t)
		cases := []func(*TournamentRequest){
			func(r *TournamentRequest) { r.EnrollEnd = r.EnrollStart },                      // empty enrollment
			func(r *TournamentRequest) { r.EventStart = r.EnrollEnd.Add(-time.Minute) },     // event inside enrollment
			func(r *TournamentRequest) { r.EventEnd = r.EventStart },                        // empty event
			func(r *TournamentRequest) { r.EnrollStart = r.EnrollEnd.Add(time.Hour) },       // reversed enrollment
		}
		for i, mutate := range cases {
			req := validTournamentRequest()
			mutate(&req)
			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, common.ErrValidation, "case %d", i)
		}
	})

	t.Run("enroll end may touch event start", func(t *testing.T) {
		svc, _, _, _, _, _ := newTournamentService(t)
		req := validTournamentRequest()
		req.EventStart = req.EnrollEnd
		_, err := svc.Create(context.Background(), req)
		assert.NoError(t, err)
	})

	t.Run("duplicate name", func(t *testing.T) {
		svc, _, _, _, _, _ := newTournamentService(t)
		_, err := svc.Create(context.Background(), validTournamentRequest())
		require.NoError(t, err)
		_, err = svc.Create(context.Background(), validTournamentRequest())
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestTournamentList_JoinCodeRedaction(t *testing.T) {
	svc, tournaments, _, _, _, _ := newTournamentService(t)
	code := "SECRET"
	tournaments.tournaments["t1"] = &model.Tournament{
		ID: "t1", Name: "finals", Visibility: model.VisibilityPrivate, JoinCode: &code,
	}

	listed, err := svc.List(context.Background(), &model.User{ID: "u1", Role: model.RoleUser})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].JoinCode)

	listed, err = svc.List(context.Background(), &model.User{ID: "a1", Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].JoinCode)
	assert.Equal(t, "SECRET", *listed[0].JoinCode)
}

func TestAttachQuestions(t *testing.T) {
	t.Run("attaches and flags", func(t *testing.T) {
		svc, tournaments, questions, _, _, expectTx := newTournamentService(t)
		tournaments.tournaments["t1"] = &model.Tournament{ID: "t1", Name: "finals"}
		questions.questions["q1"] = &model.Question{ID: "q1", Title: "pwn me"}

		expectTx(true)
		links, err := svc.AttachQuestions(context.Background(), "t1", AttachQuestionsRequest{QuestionIDs: []string{"q1"}})
		require.NoError(t, err)
		assert.Len(t, links, 1)
		assert.True(t, questions.questions["q1"].Tournament)
	})

	t.Run("practice question rejected", func(t *testing.T) {
		svc, tournaments, questions, _, _, _ := newTournamentService(t)
		tournaments.tournaments["t1"] = &model.Tournament{ID: "t1", Name: "finals"}
		questions.questions["q1"] = &model.Question{ID: "q1", Title: "warmup", Practice: true}

		_, err := svc.AttachQuestions(context.Background(), "t1", AttachQuestionsRequest{QuestionIDs: []string{"q1"}})
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestDetachQuestion_ReversesSolves(t *testing.T) {
	svc, tournaments, questions, submissions, scores, expectTx := newTournamentService(t)
	tournaments.tournaments["t1"] = &model.Tournament{ID: "t1", Name: "finals"}
	questions.questions["q1"] = &model.Question{ID: "q1", Title: "pwn me", Points: 40, Tournament: true}
	link := &model.QuestionTournament{ID: "link1", QuestionID: "q1", TournamentID: "t1"}
	tournaments.links[linkKey{"q1", "t1"}] = link

	submissions.teamSolves[teamSolveKey{"team1", "link1"}] = &model.TournamentSubmitted{
		ID: "sub1", UserID: "u1", TournamentID: "t1", QuestionTournamentID: "link1", TeamID: "team1",
	}
	scores.tPoints[tpKey{"u1", "t1"}] = &model.TournamentPoints{ID: "tp1", UserID: "u1", TournamentID: "t1", Points: 40}
	scores.teamScores[tsKey{"team1", "t1"}] = &model.TeamScore{ID: "ts1", TeamID: "team1", TournamentID: "t1", Total: 40}

	expectTx(true)
	err := svc.DetachQuestion(context.Background(), "t1", "q1")
	require.NoError(t, err)

	assert.Equal(t, 0, scores.tPoints[tpKey{"u1", "t1"}].Points)
	assert.Equal(t, 0, scores.teamScores[tsKey{"team1", "t1"}].Total)
	assert.Empty(t, submissions.teamSolves)
	assert.Empty(t, tournaments.links)
	// Last link gone, so the question is no longer a tournament question.
	assert.False(t, questions.questions["q1"].Tournament)
}

func TestDetachQuestion_RefundsHintCharges(t *testing.T) {
	svc, tournaments, questions, submissions, scores, expectTx := newTournamentService(t)
	tournaments.tournaments["t1"] = &model.Tournament{ID: "t1", Name: "finals"}
	questions.questions["q1"] = &model.Question{ID: "q1", Title: "pwn me", Points: 40, Tournament: true}
	questions.hints["h1"] = &model.Hint{ID: "h1", QuestionID: "q1", Penalty: 15}
	tournaments.links[linkKey{"q1", "t1"}] = &model.QuestionTournament{ID: "link1", QuestionID: "q1", TournamentID: "t1"}

	teamID := "team1"
	submissions.teamTournament[teamID] = "t1"
	submissions.teamSolves[teamSolveKey{teamID, "link1"}] = &model.TournamentSubmitted{
		ID: "sub1", UserID: "u1", TournamentID: "t1", QuestionTournamentID: "link1", TeamID: teamID,
	}
	submissions.hintByTeam[hintTeamKey{"h1", teamID}] = &model.HintUsed{ID: "hu1", HintID: "h1", UserID: "u1", TeamID: &teamID}

	// 40 awarded for the solve minus the 15 charged for the hint.
	scores.tPoints[tpKey{"u1", "t1"}] = &model.TournamentPoints{ID: "tp1", UserID: "u1", TournamentID: "t1", Points: 25}
	scores.teamScores[tsKey{teamID, "t1"}] = &model.TeamScore{ID: "ts1", TeamID: teamID, TournamentID: "t1", Total: 40}

	expectTx(true)
	require.NoError(t, svc.DetachQuestion(context.Background(), "t1", "q1"))

	// The solve reversal and the hint refund cancel out exactly, and the
	// marker is gone so a re-attach can charge the team again.
	assert.Equal(t, 0, scores.tPoints[tpKey{"u1", "t1"}].Points)
	assert.Equal(t, 0, scores.teamScores[tsKey{teamID, "t1"}].Total)
	assert.Empty(t, submissions.hintByTeam)
}
