package consultation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ms-health-assistant/internal/extract"
	"ms-health-assistant/internal/knowledge"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls int
}

func (g *stubGenerator) Analysis(*State) string {
	g.calls++
	return "analysis"
}

func (g *stubGenerator) Recommendations(*State) string {
	return "recommendations"
}

type fakeReportService struct {
	sent []uuid.UUID
	err  error
}

func (f *fakeReportService) SendDoctorReport(_ context.Context, sess Session, st *State) error {
	f.sent = append(f.sent, sess.ID)
	return f.err
}

type panickyExtractor struct {
	*extract.Extractor
}

func (panickyExtractor) Symptoms(string) map[knowledge.SymptomCategory][]string {
	panic("symptom table exploded")
}

type failingRepo struct {
	Repository
	getErr  error
	saveErr error
}

func (r *failingRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Repository.GetByID(ctx, id)
}

func (r *failingRepo) Save(ctx context.Context, s *Session) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.Repository.Save(ctx, s)
}

type testEnv struct {
	svc    *service
	repo   Repository
	gen    *stubGenerator
	report *fakeReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)

	env := &testEnv{
		repo:   NewMemoryRepository(),
		gen:    &stubGenerator{},
		report: &fakeReportService{},
	}
	env.svc = NewService(env.repo, extract.New(kb), env.gen, env.report, kb).(*service)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	env.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return env
}

// chat sends messages in order on one session and returns the last result.
func (env *testEnv) chat(t *testing.T, sessionID string, messages ...string) *TurnResult {
	t.Helper()
	var res *TurnResult
	for _, m := range messages {
		var err error
		res, err = env.svc.ProcessTurn(context.Background(), TurnRequest{
			SessionID: sessionID,
			UserID:    "patient@example.com",
			Message:   m,
		})
		require.NoError(t, err, m)
		sessionID = res.SessionID.String()
	}
	return res
}

func (env *testEnv) state(t *testing.T, id uuid.UUID) *State {
	t.Helper()
	detail, err := env.svc.GetSession(context.Background(), id, "patient@example.com")
	require.NoError(t, err)
	return detail.State
}

func TestStageHandlersCoverEveryStage(t *testing.T) {
	for i, h := range stageHandlers {
		assert.NotNil(t, h, Stage(i).String())
	}
}

func TestGreetingStaysInitial(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "Hello")
	assert.Equal(t, replyWelcome, res.Reply)
	assert.Equal(t, StageInitial, res.Stage)
	assert.Equal(t, DefaultTitle, res.Title)

	res = env.chat(t, res.SessionID.String(), "hey there")
	assert.Equal(t, replyWelcomeBack, res.Reply)

	res = env.chat(t, res.SessionID.String(), "What is MS?")
	assert.Equal(t, replyMSInfo, res.Reply)
	assert.Equal(t, StageInitial, res.Stage)
}

func TestDemographicsInEitherOrder(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "I am 35")
	assert.Equal(t, StageDemographics, res.Stage)
	assert.Equal(t, askGender, res.Reply)

	res = env.chat(t, res.SessionID.String(), "female")
	assert.Equal(t, StageSymptoms, res.Stage)
	assert.Equal(t, symptomsIntro, res.Reply)
	assert.Equal(t, Demographics{Age: 35, Gender: knowledge.Female}, env.state(t, res.SessionID).Demographics)

	res = env.chat(t, "", "I am a woman")
	assert.Equal(t, askAge, res.Reply)
	res = env.chat(t, res.SessionID.String(), "42")
	assert.Equal(t, StageSymptoms, res.Stage)
	assert.Equal(t, Demographics{Age: 42, Gender: knowledge.Female}, env.state(t, res.SessionID).Demographics)
}

func TestDemographicsAreSetOnce(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "I'm 35")
	res = env.chat(t, res.SessionID.String(), "I'm 50 and male")

	assert.Equal(t, Demographics{Age: 35, Gender: knowledge.Male}, env.state(t, res.SessionID).Demographics)
}

func TestSymptomsAreMergedWithoutDuplicates(t *testing.T) {
	env := newTestEnv(t)
	st := NewState()
	st.Stage = StageSymptoms

	_, err := env.svc.handleSymptoms(st, "I have fatigue")
	require.NoError(t, err)
	assert.Equal(t, StageDiagnosticTests, st.Stage)

	_, err = env.svc.handleSymptoms(st, "I have fatigue and numbness")
	require.NoError(t, err)
	assert.Equal(t, []string{"fatigue", "numbness"}, st.Symptoms[knowledge.Physical])
}

func TestSymptomsStageWaitsForASymptom(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "35, male", "nope")
	assert.Equal(t, StageSymptoms, res.Stage)
	assert.Equal(t, askSymptoms, res.Reply)

	res = env.chat(t, res.SessionID.String(), "numb legs")
	assert.Equal(t, StageDiagnosticTests, res.Stage)
	assert.Contains(t, res.Reply, "Numbness and tingling")
	assert.Equal(t, "MS Consultation: physical", res.Title)
}

func TestNoTestsRecordsPlaceholder(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "35, male", "fatigue", "no tests")
	assert.Equal(t, StageTreatments, res.Stage)

	st := env.state(t, res.SessionID)
	assert.Equal(t, map[string]TestRecord{
		knowledge.NoTestsKey: {Name: "No tests performed", Findings: []string{}},
	}, st.DiagnosticTests)
	assert.False(t, st.HasTests())
}

func TestRealTestReplacesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	st := NewState()
	st.Stage = StageDiagnosticTests
	st.DiagnosticTests[knowledge.NoTestsKey] = TestRecord{Name: "No tests performed", Findings: []string{}}

	reply, err := env.svc.handleDiagnosticTests(st, "my MRI showed lesions")
	require.NoError(t, err)

	assert.Equal(t, StageTreatments, st.Stage)
	assert.NotContains(t, st.DiagnosticTests, knowledge.NoTestsKey)
	assert.Equal(t, []string{"Lesions detected"}, st.DiagnosticTests["mri"].Findings)
	assert.Contains(t, reply, "Lesions are an important finding")
}

func TestTreatmentDenial(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "35, male", "fatigue", "no tests", "none")
	assert.Equal(t, StageLifestyle, res.Stage)
	assert.Contains(t, res.Reply, "not currently taking any medications")
	assert.Equal(t, []string{NoTreatment}, env.state(t, res.SessionID).Treatments.Current)
}

func TestTreatmentsReplaceNone(t *testing.T) {
	env := newTestEnv(t)
	st := NewState()
	st.Stage = StageTreatments
	st.Treatments.Current = []string{NoTreatment}

	_, err := env.svc.handleTreatments(st, "actually I take Ocrevus")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ocrelizumab"}, st.Treatments.Current)

	_, err = env.svc.handleTreatments(st, "I used to be on Copaxone")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ocrelizumab"}, st.Treatments.Current)
	assert.Equal(t, []string{"Glatiramer acetate"}, st.Treatments.Past)
}

func TestCompleteAnalysisIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	st := NewState()
	st.Stage = StageAnalysis

	assert.True(t, env.svc.completeAnalysis(st))
	first := st.Clone()
	assert.False(t, env.svc.completeAnalysis(st))

	assert.Equal(t, first, st)
	assert.Equal(t, 1, env.gen.calls)
}

func TestFullConsultationPublishesOnce(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "Hi", "35, male", "fatigue and numbness", "no tests", "none", "basic diet and exercise")
	assert.Equal(t, StageAnalysis, res.Stage)
	assert.True(t, res.AnalysisComplete)
	assert.Contains(t, res.Reply, "analysis\nRecommendations:\nrecommendations")
	assert.Equal(t, []uuid.UUID{res.SessionID}, env.report.sent)

	res = env.chat(t, res.SessionID.String(), "thanks")
	assert.Equal(t, replyFollowUp, res.Reply)
	assert.Len(t, env.report.sent, 1)
	assert.Equal(t, 1, env.gen.calls)

	report, err := env.svc.GetReport(context.Background(), res.SessionID, "patient@example.com")
	require.NoError(t, err)
	assert.Equal(t, "analysis", report.Analysis)
	assert.Equal(t, "recommendations", report.Recommendations)
}

func TestReportFailureDoesNotFailTurn(t *testing.T) {
	env := newTestEnv(t)
	env.report.err = errors.New("telegram is down")

	res := env.chat(t, "", "35, male", "fatigue", "no tests", "none", "I walk every day")
	assert.True(t, res.AnalysisComplete)
	assert.Len(t, env.report.sent, 1)
}

func TestGetReportNotReady(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "35, male")

	_, err := env.svc.GetReport(context.Background(), res.SessionID, "patient@example.com")
	assert.ErrorIs(t, err, ErrReportNotReady)
}

func TestRecallLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "35, male", "fatigue and numbness")
	before := env.state(t, res.SessionID)

	res = env.chat(t, res.SessionID.String(), "What symptoms did I mention?")
	assert.Contains(t, res.Reply, "Physical symptoms:\n- fatigue\n- numbness\n")
	assert.Equal(t, StageDiagnosticTests, res.Stage)

	after := env.state(t, res.SessionID)
	require.Len(t, after.Transcript, len(before.Transcript)+2)
	after.Transcript = after.Transcript[:len(before.Transcript)]
	assert.Equal(t, before, after)
}

func TestRecallWithNothingCollected(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "what did I say?")
	assert.Equal(t, "You haven't told me anything yet. "+replyWelcome, res.Reply)
}

func TestBlankMessageRepeatsQuestion(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "35, male")
	before := env.state(t, res.SessionID)

	res = env.chat(t, res.SessionID.String(), "   ")
	assert.Equal(t, askSymptoms, res.Reply)

	after := env.state(t, res.SessionID)
	assert.Len(t, after.Transcript, len(before.Transcript)+2)
	assert.Equal(t, before.Demographics, after.Demographics)
	assert.Equal(t, before.Stage, after.Stage)
}

func TestPanicRestoresState(t *testing.T) {
	env := newTestEnv(t)
	kb, err := knowledge.Default()
	require.NoError(t, err)
	env.svc.ex = panickyExtractor{extract.New(kb)}

	st := NewState()
	st.Stage = StageSymptoms
	st.Demographics = Demographics{Age: 35, Gender: knowledge.Male}
	want := st.Clone()

	assert.Equal(t, replyTrouble, env.svc.respond(st, "fatigue"))
	assert.Equal(t, want, st)
}

func TestUnknownStageRestoresState(t *testing.T) {
	env := newTestEnv(t)
	st := NewState()
	st.Stage = stageCount

	assert.Equal(t, replyTrouble, env.svc.respond(st, "fatigue"))
	assert.Equal(t, stageCount, st.Stage)
}

func TestCorruptStateIsReset(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	require.NoError(t, env.repo.Save(context.Background(), &Session{
		ID:     id,
		UserID: "patient@example.com",
		Title:  "Old consultation",
		Stage:  StageLifestyle,
		State:  []byte(`{"stage":"bogus"`),
	}))

	res := env.chat(t, id.String(), "hello")
	assert.Equal(t, replyWelcome, res.Reply)
	assert.Equal(t, StageInitial, res.Stage)
	assert.Equal(t, "Old consultation", res.Title)
}

func TestInvalidStateIsReset(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	require.NoError(t, env.repo.Save(context.Background(), &Session{
		ID:     id,
		UserID: "patient@example.com",
		Title:  "Old consultation",
		State:  []byte(`{"stage":"symptoms","demographics":{"age":500}}`),
	}))

	st := env.state(t, id)
	assert.Equal(t, StageInitial, st.Stage)
	assert.Zero(t, st.Demographics.Age)
}

func TestProcessTurnInputErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  TurnRequest
	}{
		{"missing user", TurnRequest{UserID: "  ", Message: "hi"}},
		{"bad session id", TurnRequest{SessionID: "not-a-uuid", UserID: "u", Message: "hi"}},
		{"long message", TurnRequest{UserID: "u", Message: strings.Repeat("a", 4001)}},
		{"invalid utf-8", TurnRequest{UserID: "u", Message: "caf\xe9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ProcessTurn(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestProcessTurnOwnership(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "35, male")

	_, err := env.svc.ProcessTurn(context.Background(), TurnRequest{
		SessionID: res.SessionID.String(),
		UserID:    "someone@example.com",
		Message:   "fatigue",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.ProcessTurn(context.Background(), TurnRequest{
		SessionID: uuid.NewString(),
		UserID:    "patient@example.com",
		Message:   "fatigue",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreFailures(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "35, male")

	repo := &failingRepo{Repository: env.repo, saveErr: errors.New("disk full")}
	env.svc.repo = repo

	_, err := env.svc.ProcessTurn(context.Background(), TurnRequest{UserID: "u", Message: "hi"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	repo.saveErr = nil
	repo.getErr = errors.New("connection refused")
	_, err = env.svc.GetSession(context.Background(), res.SessionID, "patient@example.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestTitles(t *testing.T) {
	env := newTestEnv(t)

	res := env.chat(t, "", "I have been feeling very tired lately. Is that MS?")
	assert.Equal(t, "I have been feeling very tired lately", res.Title)

	res = env.chat(t, res.SessionID.String(), "35, male", "fatigue")
	assert.Equal(t, "I have been feeling very tired lately", res.Title)

	res = env.chat(t, "", "hi", "35, male")
	assert.Equal(t, DefaultTitle, res.Title)
	res = env.chat(t, res.SessionID.String(), "I get anxious and forget things")
	assert.Equal(t, "I get anxious and forget things", res.Title)

	res = env.chat(t, "", "hi", "35, male", "anxious")
	assert.Equal(t, "MS Consultation: emotional", res.Title)
}

func TestNewServiceAcceptsOnlyValidUTF8(t *testing.T) {
	kb, err := knowledge.Default()
	require.NoError(t, err)

	var svc Service
	require.NotPanics(t, func() {
		svc = NewService(NewMemoryRepository(), extract.New(kb), &stubGenerator{}, nil, kb)
	})
	_, err = svc.ProcessTurn(context.Background(), TurnRequest{UserID: "u", Message: "caf\xe9"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClear(t *testing.T) {
	env := newTestEnv(t)
	res := env.chat(t, "", "I have been feeling very tired lately", "35, male", "fatigue")

	sess, err := env.svc.Clear(context.Background(), res.SessionID, "patient@example.com")
	require.NoError(t, err)
	assert.Equal(t, StageInitial, sess.Stage)

	st := env.state(t, res.SessionID)
	assert.Equal(t, StageInitial, st.Stage)
	assert.Empty(t, st.Transcript)
	assert.Empty(t, st.Symptoms)
	assert.Equal(t, "I have been feeling very tired lately", st.Title)
}

func TestSessionCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := "patient@example.com"

	a, err := env.svc.CreateSession(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, a.Title)
	b, err := env.svc.CreateSession(ctx, user)
	require.NoError(t, err)
	_, err = env.svc.CreateSession(ctx, "someone@example.com")
	require.NoError(t, err)

	list, err := env.svc.ListSessions(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, []uuid.UUID{list[0].ID, list[1].ID})

	renamed, err := env.svc.RenameSession(ctx, a.ID, user, "  Leg numbness  ")
	require.NoError(t, err)
	assert.Equal(t, "Leg numbness", renamed.Title)

	list, err = env.svc.ListSessions(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "Leg numbness", env.state(t, a.ID).Title)

	_, err = env.svc.RenameSession(ctx, a.ID, user, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.RenameSession(ctx, a.ID, user, strings.Repeat("x", 201))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.GetSession(ctx, a.ID, "someone@example.com")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, env.svc.DeleteSession(ctx, a.ID, "someone@example.com"), ErrForbidden)

	require.NoError(t, env.svc.DeleteSession(ctx, b.ID, user))
	_, err = env.svc.GetSession(ctx, b.ID, user)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, env.svc.DeleteSession(ctx, b.ID, user), ErrSessionNotFound)

	_, err = env.svc.ListSessions(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.CreateSession(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
