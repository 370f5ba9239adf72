package service

import (
	"context"
	"testing"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hintFixture struct {
	svc         *HintService
	mock        sqlmock.Sqlmock
	questions   *fakeQuestionRepo
	submissions *fakeSubmissionRepo
	scores      *fakeScoreRepo
	teams       *fakeTeamRepo
	tournaments *fakeTournamentRepo
}

func newHintFixture(t *testing.T) *hintFixture {
	t.Helper()
	db, mock := newTxDB(t)

	questions := newFakeQuestionRepo()
	submissions := newFakeSubmissionRepo()
	scores := newFakeScoreRepo()
	teams := newFakeTeamRepo()
	tournaments := newFakeTournamentRepo()

	leaderboard := NewLeaderboardService(scores, nil, 0)
	svc := NewHintService(questions, submissions, scores, teams, tournaments, leaderboard, db, time.UTC)

	return &hintFixture{
		svc:         svc,
		mock:        mock,
		questions:   questions,
		submissions: submissions,
		scores:      scores,
		teams:       teams,
		tournaments: tournaments,
	}
}

func (f *hintFixture) addHint(id, questionID string, penalty int) *model.Hint {
	h := &model.Hint{ID: id, QuestionID: questionID, Description: "look closer", Penalty: penalty}
	f.hints()[id] = h
	return h
}

func (f *hintFixture) hints() map[string]*model.Hint {
	return f.questions.hints
}

func TestUseHint_PracticeChargesOnce(t *testing.T) {
	f := newHintFixture(t)
	f.addHint("h1", "q1", 30)
	f.scores.points["u1"] = &model.Point{ID: "p1", UserID: "u1", Points: 100}
	user := &model.User{ID: "u1", Role: model.RoleUser}

	expectTxCommit(f.mock)
	reveal, err := f.svc.UseHint(context.Background(), user, "h1", "")
	require.NoError(t, err)
	assert.Equal(t, "look closer", reveal.Description)
	assert.True(t, reveal.Charged)
	assert.Equal(t, 70, f.scores.points["u1"].Points)

	// The second reveal is free: the idempotency marker short-circuits
	// before any transaction starts.
	reveal, err = f.svc.UseHint(context.Background(), user, "h1", "")
	require.NoError(t, err)
	assert.Equal(t, "look closer", reveal.Description)
	assert.False(t, reveal.Charged)
	assert.Equal(t, 70, f.scores.points["u1"].Points)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUseHint_PracticeInsufficientPoints(t *testing.T) {
	f := newHintFixture(t)
	f.addHint("h1", "q1", 30)
	f.scores.points["u1"] = &model.Point{ID: "p1", UserID: "u1", Points: 10}
	user := &model.User{ID: "u1", Role: model.RoleUser}

	expectTxRollback(f.mock)
	_, err := f.svc.UseHint(context.Background(), user, "h1", "")
	assert.ErrorIs(t, err, common.ErrInsufficientPoints)
	assert.Equal(t, 10, f.scores.points["u1"].Points)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUseHint_AdminReadsFree(t *testing.T) {
	f := newHintFixture(t)
	f.addHint("h1", "q1", 30)
	admin := &model.User{ID: "a1", Role: model.RoleAdmin}

	reveal, err := f.svc.UseHint(context.Background(), admin, "h1", "")
	require.NoError(t, err)
	assert.Equal(t, "look closer", reveal.Description)
	assert.False(t, reveal.Charged)
	assert.Empty(t, f.submissions.hintByUser)
}

func TestUseHint_UnknownHint(t *testing.T) {
	f := newHintFixture(t)
	user := &model.User{ID: "u1", Role: model.RoleUser}

	_, err := f.svc.UseHint(context.Background(), user, "missing", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUseHint_TournamentChargesTeamOnce(t *testing.T) {
	f := newHintFixture(t)
	f.addHint("h1", "q1", 20)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.tournaments.tournaments["t1"] = &model.Tournament{
		ID:          "t1",
		EnrollStart: start.Add(-2 * time.Hour),
		EnrollEnd:   start,
		EventStart:  start,
		EventEnd:    start.Add(4 * time.Hour),
	}
	f.tournaments.links[linkKey{"q1", "t1"}] = &model.QuestionTournament{ID: "link1", QuestionID: "q1", TournamentID: "t1"}
	f.teams.teams["team1"] = &model.Team{ID: "team1", TournamentID: "t1", LeaderUserID: "u1"}
	f.teams.members["team1"] = []*model.TeamMember{
		{ID: "m1", TeamID: "team1", UserID: "u1"},
		{ID: "m2", TeamID: "team1", UserID: "u2"},
	}
	f.scores.tPoints[tpKey{"u1", "t1"}] = &model.TournamentPoints{ID: "tp1", UserID: "u1", TournamentID: "t1", Points: 50}
	f.scores.tPoints[tpKey{"u2", "t1"}] = &model.TournamentPoints{ID: "tp2", UserID: "u2", TournamentID: "t1", Points: 50}
	f.svc.now = func() time.Time { return start.Add(time.Hour) }

	user := &model.User{ID: "u1", Role: model.RoleUser}
	expectTxCommit(f.mock)
	reveal, err := f.svc.UseHint(context.Background(), user, "h1", "t1")
	require.NoError(t, err)
	assert.True(t, reveal.Charged)
	assert.Equal(t, 30, f.scores.tPoints[tpKey{"u1", "t1"}].Points)

	// The marker is keyed by team: a teammate's repeat costs nothing.
	teammate := &model.User{ID: "u2", Role: model.RoleUser}
	reveal, err = f.svc.UseHint(context.Background(), teammate, "h1", "t1")
	require.NoError(t, err)
	assert.False(t, reveal.Charged)
	assert.Equal(t, 50, f.scores.tPoints[tpKey{"u2", "t1"}].Points)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUseHint_TournamentClosedWindow(t *testing.T) {
	f := newHintFixture(t)
	f.addHint("h1", "q1", 20)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.tournaments.tournaments["t1"] = &model.Tournament{
		ID:          "t1",
		EnrollStart: start.Add(-2 * time.Hour),
		EnrollEnd:   start,
		EventStart:  start,
		EventEnd:    start.Add(4 * time.Hour),
	}
	f.svc.now = func() time.Time { return start.Add(5 * time.Hour) }

	user := &model.User{ID: "u1", Role: model.RoleUser}
	_, err := f.svc.UseHint(context.Background(), user, "h1", "t1")
	assert.ErrorIs(t, err, common.ErrForbidden)
}
