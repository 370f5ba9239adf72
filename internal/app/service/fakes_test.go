package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// newTxDB returns a mocked *sql.DB for services that only need working
// transaction boundaries; the fake repositories ignore the tx handle.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectTxCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectTxRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

type fakeQuestionRepo struct {
	questions map[string]*model.Question
	hints     map[string]*model.Hint
	active    map[string]bool
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{
		questions: map[string]*model.Question{},
		hints:     map[string]*model.Hint{},
		active:    map[string]bool{},
	}
}

func (f *fakeQuestionRepo) Create(ctx context.Context, tx *sql.Tx, q *model.Question) error {
	f.questions[q.ID] = q
	return nil
}

func (f *fakeQuestionRepo) Update(ctx context.Context, tx *sql.Tx, q *model.Question) error {
	if _, ok := f.questions[q.ID]; !ok {
		return common.ErrNotFound
	}
	f.questions[q.ID] = q
	return nil
}

func (f *fakeQuestionRepo) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	if _, ok := f.questions[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.questions, id)
	return nil
}

func (f *fakeQuestionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *q
	return &copied, nil
}

func (f *fakeQuestionRepo) SetTournamentFlag(ctx context.Context, tx *sql.Tx, id string, flag bool) error {
	q, ok := f.questions[id]
	if !ok {
		return common.ErrNotFound
	}
	q.Tournament = flag
	return nil
}

func (f *fakeQuestionRepo) List(ctx context.Context, limit, offset int, filter repository.QuestionFilter) ([]model.Question, int, error) {
	var out []model.Question
	for _, q := range f.questions {
		switch filter.Mode {
		case model.ModePractice:
			if !q.Practice {
				continue
			}
		case model.ModeTournament:
			if !q.Tournament {
				continue
			}
		case model.ModeUnpublished:
			if q.Practice || q.Tournament {
				continue
			}
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (f *fakeQuestionRepo) HasActivity(ctx context.Context, questionID string) (bool, error) {
	return f.active[questionID], nil
}

func (f *fakeQuestionRepo) AddHints(ctx context.Context, tx *sql.Tx, questionID string, hints []model.Hint) error {
	for i := range hints {
		h := hints[i]
		f.hints[h.ID] = &h
	}
	return nil
}

func (f *fakeQuestionRepo) GetHintsByQuestionID(ctx context.Context, questionID string) ([]model.Hint, error) {
	var out []model.Hint
	for _, h := range f.hints {
		if h.QuestionID == questionID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeQuestionRepo) DeleteHintsByQuestionID(ctx context.Context, tx *sql.Tx, questionID string) error {
	for id, h := range f.hints {
		if h.QuestionID == questionID {
			delete(f.hints, id)
		}
	}
	return nil
}

func (f *fakeQuestionRepo) FindHintByID(ctx context.Context, hintID string) (*model.Hint, error) {
	h, ok := f.hints[hintID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *h
	return &copied, nil
}

type submittedKey struct{ userID, questionID string }
type teamSolveKey struct{ teamID, linkID string }
type hintUserKey struct{ hintID, userID string }
type hintTeamKey struct{ hintID, teamID string }

type fakeSubmissionRepo struct {
	submitted  map[submittedKey]*model.Submitted
	teamSolves map[teamSolveKey]*model.TournamentSubmitted
	hintByUser map[hintUserKey]*model.HintUsed
	hintByTeam map[hintTeamKey]*model.HintUsed

	// Scoping data for the question-level marker queries. Fixtures share the
	// question repo's hint map and register team tournaments as needed.
	hints          map[string]*model.Hint
	teamTournament map[string]string
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submitted:      map[submittedKey]*model.Submitted{},
		teamSolves:     map[teamSolveKey]*model.TournamentSubmitted{},
		hintByUser:     map[hintUserKey]*model.HintUsed{},
		hintByTeam:     map[hintTeamKey]*model.HintUsed{},
		hints:          map[string]*model.Hint{},
		teamTournament: map[string]string{},
	}
}

func (f *fakeSubmissionRepo) hintOnQuestion(hintID, questionID string) bool {
	h, ok := f.hints[hintID]
	return ok && h.QuestionID == questionID
}

func (f *fakeSubmissionRepo) FindSubmitted(ctx context.Context, userID, questionID string) (*model.Submitted, error) {
	s, ok := f.submitted[submittedKey{userID, questionID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubmissionRepo) CreateSubmitted(ctx context.Context, tx *sql.Tx, s *model.Submitted) error {
	key := submittedKey{s.UserID, s.QuestionID}
	if _, ok := f.submitted[key]; ok {
		return common.ErrConflict
	}
	f.submitted[key] = s
	return nil
}

func (f *fakeSubmissionRepo) ListSubmittedByQuestion(ctx context.Context, questionID string) ([]model.Submitted, error) {
	var out []model.Submitted
	for key, s := range f.submitted {
		if key.questionID == questionID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) DeleteSubmittedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error {
	for key := range f.submitted {
		if key.questionID == questionID {
			delete(f.submitted, key)
		}
	}
	return nil
}

func (f *fakeSubmissionRepo) FindTournamentSubmitted(ctx context.Context, teamID, linkID string) (*model.TournamentSubmitted, error) {
	s, ok := f.teamSolves[teamSolveKey{teamID, linkID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubmissionRepo) CreateTournamentSubmitted(ctx context.Context, tx *sql.Tx, s *model.TournamentSubmitted) error {
	key := teamSolveKey{s.TeamID, s.QuestionTournamentID}
	if _, ok := f.teamSolves[key]; ok {
		return common.ErrConflict
	}
	f.teamSolves[key] = s
	return nil
}

func (f *fakeSubmissionRepo) ListTournamentSubmittedByLink(ctx context.Context, linkID string) ([]model.TournamentSubmitted, error) {
	var out []model.TournamentSubmitted
	for key, s := range f.teamSolves {
		if key.linkID == linkID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) DeleteTournamentSubmittedByLink(ctx context.Context, tx *sql.Tx, linkID string) error {
	for key := range f.teamSolves {
		if key.linkID == linkID {
			delete(f.teamSolves, key)
		}
	}
	return nil
}

func (f *fakeSubmissionRepo) FindHintUsedByUser(ctx context.Context, hintID, userID string) (*model.HintUsed, error) {
	hu, ok := f.hintByUser[hintUserKey{hintID, userID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return hu, nil
}

func (f *fakeSubmissionRepo) FindHintUsedByTeam(ctx context.Context, hintID, teamID string) (*model.HintUsed, error) {
	hu, ok := f.hintByTeam[hintTeamKey{hintID, teamID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return hu, nil
}

func (f *fakeSubmissionRepo) CreateHintUsed(ctx context.Context, tx *sql.Tx, hu *model.HintUsed) error {
	if hu.TeamID != nil {
		key := hintTeamKey{hu.HintID, *hu.TeamID}
		if _, ok := f.hintByTeam[key]; ok {
			return common.ErrConflict
		}
		f.hintByTeam[key] = hu
		return nil
	}
	key := hintUserKey{hu.HintID, hu.UserID}
	if _, ok := f.hintByUser[key]; ok {
		return common.ErrConflict
	}
	f.hintByUser[key] = hu
	return nil
}

func (f *fakeSubmissionRepo) DeleteHintUsedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error {
	for key := range f.hintByUser {
		if f.hintOnQuestion(key.hintID, questionID) {
			delete(f.hintByUser, key)
		}
	}
	for key := range f.hintByTeam {
		if f.hintOnQuestion(key.hintID, questionID) {
			delete(f.hintByTeam, key)
		}
	}
	return nil
}

func (f *fakeSubmissionRepo) ListHintUsedByQuestionAndTournament(ctx context.Context, questionID, tournamentID string) ([]model.HintUsed, error) {
	var out []model.HintUsed
	for key, hu := range f.hintByTeam {
		if f.hintOnQuestion(key.hintID, questionID) && f.teamTournament[key.teamID] == tournamentID {
			out = append(out, *hu)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) DeleteHintUsedByQuestionAndTournament(ctx context.Context, tx *sql.Tx, questionID, tournamentID string) error {
	for key := range f.hintByTeam {
		if f.hintOnQuestion(key.hintID, questionID) && f.teamTournament[key.teamID] == tournamentID {
			delete(f.hintByTeam, key)
		}
	}
	return nil
}

type tpKey struct{ userID, tournamentID string }
type tsKey struct{ teamID, tournamentID string }

type fakeScoreRepo struct {
	points     map[string]*model.Point
	tPoints    map[tpKey]*model.TournamentPoints
	teamScores map[tsKey]*model.TeamScore

	practiceBoard []model.LeaderboardEntry
	teamBoard     []model.LeaderboardEntry
	boardReads    int
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{
		points:     map[string]*model.Point{},
		tPoints:    map[tpKey]*model.TournamentPoints{},
		teamScores: map[tsKey]*model.TeamScore{},
	}
}

func (f *fakeScoreRepo) CreatePoint(ctx context.Context, tx *sql.Tx, p *model.Point) error {
	f.points[p.UserID] = p
	return nil
}

func (f *fakeScoreRepo) FindPointByUserID(ctx context.Context, userID string) (*model.Point, error) {
	p, ok := f.points[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return p, nil
}

func (f *fakeScoreRepo) LockPointForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.Point, error) {
	return f.FindPointByUserID(ctx, userID)
}

func (f *fakeScoreRepo) AddPoints(ctx context.Context, tx *sql.Tx, userID string, delta int) error {
	p, ok := f.points[userID]
	if !ok {
		return common.ErrNotFound
	}
	p.Points += delta
	return nil
}

func (f *fakeScoreRepo) CreateTournamentPoints(ctx context.Context, tx *sql.Tx, tp *model.TournamentPoints) error {
	f.tPoints[tpKey{tp.UserID, tp.TournamentID}] = tp
	return nil
}

func (f *fakeScoreRepo) FindTournamentPoints(ctx context.Context, userID, tournamentID string) (*model.TournamentPoints, error) {
	tp, ok := f.tPoints[tpKey{userID, tournamentID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return tp, nil
}

func (f *fakeScoreRepo) LockTournamentPointsForUpdate(ctx context.Context, tx *sql.Tx, userID, tournamentID string) (*model.TournamentPoints, error) {
	return f.FindTournamentPoints(ctx, userID, tournamentID)
}

func (f *fakeScoreRepo) AddTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string, delta int) error {
	tp, ok := f.tPoints[tpKey{userID, tournamentID}]
	if !ok {
		return common.ErrNotFound
	}
	tp.Points += delta
	return nil
}

func (f *fakeScoreRepo) DeleteTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string) error {
	delete(f.tPoints, tpKey{userID, tournamentID})
	return nil
}

func (f *fakeScoreRepo) CreateTeamScore(ctx context.Context, tx *sql.Tx, ts *model.TeamScore) error {
	f.teamScores[tsKey{ts.TeamID, ts.TournamentID}] = ts
	return nil
}

func (f *fakeScoreRepo) FindTeamScore(ctx context.Context, teamID, tournamentID string) (*model.TeamScore, error) {
	ts, ok := f.teamScores[tsKey{teamID, tournamentID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return ts, nil
}

func (f *fakeScoreRepo) AddTeamScore(ctx context.Context, tx *sql.Tx, teamID, tournamentID string, delta int) error {
	ts, ok := f.teamScores[tsKey{teamID, tournamentID}]
	if !ok {
		return common.ErrNotFound
	}
	ts.Total += delta
	return nil
}

func (f *fakeScoreRepo) ListPracticeLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	f.boardReads++
	return append([]model.LeaderboardEntry(nil), f.practiceBoard...), nil
}

func (f *fakeScoreRepo) ListTeamLeaderboard(ctx context.Context, tournamentID string) ([]model.LeaderboardEntry, error) {
	f.boardReads++
	return append([]model.LeaderboardEntry(nil), f.teamBoard...), nil
}

type fakeTeamRepo struct {
	teams   map[string]*model.Team
	members map[string][]*model.TeamMember // keyed by team id
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		teams:   map[string]*model.Team{},
		members: map[string][]*model.TeamMember{},
	}
}

func (f *fakeTeamRepo) Create(ctx context.Context, tx *sql.Tx, team *model.Team) error {
	for _, existing := range f.teams {
		if existing.TournamentID == team.TournamentID && existing.Name == team.Name {
			return common.ErrConflict
		}
	}
	f.teams[team.ID] = team
	return nil
}

func (f *fakeTeamRepo) Delete(ctx context.Context, tx *sql.Tx, teamID string) error {
	if _, ok := f.teams[teamID]; !ok {
		return common.ErrNotFound
	}
	delete(f.teams, teamID)
	delete(f.members, teamID)
	return nil
}

func (f *fakeTeamRepo) FindByID(ctx context.Context, teamID string) (*model.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *team
	return &copied, nil
}

func (f *fakeTeamRepo) FindByInviteCode(ctx context.Context, code string) (*model.Team, error) {
	for _, team := range f.teams {
		if team.InviteCode == code {
			copied := *team
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTeamRepo) CountInTournament(ctx context.Context, tournamentID string) (int, error) {
	count := 0
	for _, team := range f.teams {
		if team.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (f *fakeTeamRepo) CountMembers(ctx context.Context, teamID string) (int, error) {
	return len(f.members[teamID]), nil
}

func (f *fakeTeamRepo) CreateMember(ctx context.Context, tx *sql.Tx, member *model.TeamMember) error {
	for _, m := range f.members[member.TeamID] {
		if m.UserID == member.UserID {
			return common.ErrConflict
		}
	}
	f.members[member.TeamID] = append(f.members[member.TeamID], member)
	return nil
}

func (f *fakeTeamRepo) DeleteMember(ctx context.Context, tx *sql.Tx, teamID, userID string) error {
	members := f.members[teamID]
	for i, m := range members {
		if m.UserID == userID {
			f.members[teamID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeTeamRepo) DeleteMembersByTeam(ctx context.Context, tx *sql.Tx, teamID string) error {
	delete(f.members, teamID)
	return nil
}

func (f *fakeTeamRepo) FindMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	for _, m := range f.members[teamID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTeamRepo) FindMembershipInTournament(ctx context.Context, tournamentID, userID string) (*model.TeamMember, error) {
	for teamID, members := range f.members {
		team, ok := f.teams[teamID]
		if !ok || team.TournamentID != tournamentID {
			continue
		}
		for _, m := range members {
			if m.UserID == userID {
				return m, nil
			}
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTeamRepo) ListMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	var out []model.TeamMember
	for _, m := range f.members[teamID] {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeTeamRepo) ListMemberUserIDs(ctx context.Context, tx *sql.Tx, teamID string) ([]string, error) {
	var ids []string
	for _, m := range f.members[teamID] {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

type linkKey struct{ questionID, tournamentID string }

type fakeTournamentRepo struct {
	tournaments map[string]*model.Tournament
	links       map[linkKey]*model.QuestionTournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{
		tournaments: map[string]*model.Tournament{},
		links:       map[linkKey]*model.QuestionTournament{},
	}
}

func (f *fakeTournamentRepo) Create(ctx context.Context, t *model.Tournament) error {
	for _, existing := range f.tournaments {
		if existing.Name == t.Name {
			return common.ErrConflict
		}
	}
	f.tournaments[t.ID] = t
	return nil
}

func (f *fakeTournamentRepo) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	if _, ok := f.tournaments[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.tournaments, id)
	return nil
}

func (f *fakeTournamentRepo) FindByID(ctx context.Context, id string) (*model.Tournament, error) {
	t, ok := f.tournaments[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTournamentRepo) FindByJoinCode(ctx context.Context, code string) (*model.Tournament, error) {
	for _, t := range f.tournaments {
		if t.JoinCode != nil && *t.JoinCode == code {
			copied := *t
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTournamentRepo) List(ctx context.Context) ([]model.Tournament, error) {
	var out []model.Tournament
	for _, t := range f.tournaments {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTournamentRepo) ListEnrollable(ctx context.Context, now time.Time) ([]model.Tournament, error) {
	var out []model.Tournament
	for _, t := range f.tournaments {
		if t.EnrollmentOpen(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTournamentRepo) AttachQuestion(ctx context.Context, tx *sql.Tx, link *model.QuestionTournament) error {
	key := linkKey{link.QuestionID, link.TournamentID}
	if _, ok := f.links[key]; ok {
		return common.ErrConflict
	}
	f.links[key] = link
	return nil
}

func (f *fakeTournamentRepo) FindLink(ctx context.Context, questionID, tournamentID string) (*model.QuestionTournament, error) {
	link, ok := f.links[linkKey{questionID, tournamentID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return link, nil
}

func (f *fakeTournamentRepo) FindLinkByID(ctx context.Context, linkID string) (*model.QuestionTournament, error) {
	for _, link := range f.links {
		if link.ID == linkID {
			return link, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTournamentRepo) ListLinksByQuestion(ctx context.Context, tx *sql.Tx, questionID string) ([]model.QuestionTournament, error) {
	var out []model.QuestionTournament
	for key, link := range f.links {
		if key.questionID == questionID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (f *fakeTournamentRepo) ListLinksByTournament(ctx context.Context, tournamentID string) ([]model.QuestionTournament, error) {
	var out []model.QuestionTournament
	for key, link := range f.links {
		if key.tournamentID == tournamentID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (f *fakeTournamentRepo) DeleteLink(ctx context.Context, tx *sql.Tx, linkID string) error {
	for key, link := range f.links {
		if link.ID == linkID {
			delete(f.links, key)
			return nil
		}
	}
	return common.ErrNotFound
}
