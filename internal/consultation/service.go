package consultation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"ms-health-assistant/internal/extract"
	"ms-health-assistant/internal/knowledge"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Extractor pulls partial facts out of one user message.
// We define it here to decouple the engine from the matching rules.
type Extractor interface {
	Demographics(text string) extract.Demographics
	Symptoms(text string) map[knowledge.SymptomCategory][]string
	Tests(text string) extract.Tests
	Treatments(text string) extract.Treatments
	Lifestyle(text string) map[knowledge.LifestyleCategory][]string
	Intent(text string) extract.Intent
	Recall(text string) extract.Topic
}

// ReportGenerator writes the analysis and recommendations for a state that
// has reached the analysis stage.
type ReportGenerator interface {
	Analysis(st *State) string
	Recommendations(st *State) string
}

// ReportService defines the interface for delivering a finished consultation
type ReportService interface {
	SendDoctorReport(ctx context.Context, sess Session, st *State) error
}

type Service interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
	GetReport(ctx context.Context, sessionID uuid.UUID, userID string) (*Report, error)
	Clear(ctx context.Context, sessionID uuid.UUID, userID string) (*Session, error)

	CreateSession(ctx context.Context, userID string) (*Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionDetail, error)
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	RenameSession(ctx context.Context, sessionID uuid.UUID, userID, title string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID, userID string) error
}

type service struct {
	repo      Repository
	ex        Extractor
	gen       ReportGenerator
	reportSvc ReportService
	kb        *knowledge.Base
	validate  *validator.Validate
	now       func() time.Time
}

// NewService wires the engine. reportSvc may be nil when finished
// consultations are not forwarded anywhere.
func NewService(repo Repository, ex Extractor, gen ReportGenerator, reportSvc ReportService, kb *knowledge.Base) Service {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	}); err != nil {
		panic(oops.Wrapf(err, "failed to register utf8 validation"))
	}

	return &service{
		repo:      repo,
		ex:        ex,
		gen:       gen,
		reportSvc: reportSvc,
		kb:        kb,
		validate:  validate,
		now:       time.Now,
	}
}

// ProcessTurn is the single entry point of the dialogue engine: load or create
// the session, run the current stage against the message, write it back.
func (s *service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	sess, st, err := s.openSession(ctx, req)
	if err != nil {
		return nil, err
	}

	// The first message long enough to describe something names the session.
	if st.Title == DefaultTitle {
		st.Title = GenerateTitle(req.Message)
	}

	before := st.Stage
	wasComplete := st.AnalysisComplete
	received := s.now()

	reply := s.respond(st, req.Message)

	st.Transcript = append(st.Transcript,
		Message{Role: RoleUser, Content: req.Message, Timestamp: received},
		Message{Role: RoleAssistant, Content: reply, Timestamp: s.now()},
	)
	if st.Title == DefaultTitle {
		if t := symptomTitle(st); t != "" {
			st.Title = t
		}
	}

	if err := s.save(ctx, sess, st); err != nil {
		return nil, err
	}

	if st.Stage != before {
		slog.Info("Consultation advanced",
			slog.String("session_id", sess.ID.String()),
			slog.String("from", before.String()),
			slog.String("to", st.Stage.String()),
		)
	}

	if st.AnalysisComplete && !wasComplete {
		s.sendReport(ctx, *sess, st)
	}

	return &TurnResult{
		Reply:            reply,
		SessionID:        sess.ID,
		Title:            sess.Title,
		Stage:            st.Stage,
		AnalysisComplete: st.AnalysisComplete,
	}, nil
}

func (s *service) openSession(ctx context.Context, req TurnRequest) (*Session, *State, error) {
	if req.SessionID == "" {
		now := s.now()
		sess := &Session{
			ID:        uuid.New(),
			UserID:    req.UserID,
			Title:     DefaultTitle,
			Stage:     StageInitial,
			CreatedAt: now,
		}
		slog.Info("Consultation started",
			slog.String("session_id", sess.ID.String()),
			slog.String("user_id", sess.UserID),
		)
		return sess, NewState(), nil
	}

	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, nil, invalidInput(err)
	}

	sess, err := s.load(ctx, id, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	return sess, s.decode(sess), nil
}

// load fetches a session and checks that userID owns it.
func (s *service) load(ctx context.Context, id uuid.UUID, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidInput(errors.New("user id is required"))
	}

	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, oops.In("consultation").With("session_id", id).Wrap(err)
		}
		slog.Error("Session store read failed",
			slog.String("session_id", id.String()),
			slog.Any("error", err),
		)
		return nil, storeError(err, "get session")
	}

	if sess.UserID != userID {
		return nil, oops.In("consultation").With("session_id", id).Wrap(ErrForbidden)
	}
	return sess, nil
}

// decode never fails: a stored state that does not parse or validate is
// replaced by a fresh one.
func (s *service) decode(sess *Session) *State {
	st, err := DecodeState(sess.State)
	if err == nil {
		err = st.Validate(s.kb)
	}
	if err != nil {
		slog.Warn("Resetting corrupt conversation state",
			slog.String("session_id", sess.ID.String()),
			slog.Any("error", errors.Join(ErrCorruptState, err)),
		)
		st = NewState()
		st.Title = sess.Title
	}
	return st
}

func (s *service) save(ctx context.Context, sess *Session, st *State) error {
	data, err := st.Encode()
	if err != nil {
		return oops.In("consultation").With("session_id", sess.ID).Wrapf(err, "failed to encode state")
	}

	sess.Title = st.Title
	sess.Stage = st.Stage
	sess.AnalysisComplete = st.AnalysisComplete
	sess.State = data
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	sess.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, sess); err != nil {
		slog.Error("Session store write failed",
			slog.String("session_id", sess.ID.String()),
			slog.Any("error", err),
		)
		return storeError(err, "save session")
	}
	return nil
}

func (s *service) sendReport(ctx context.Context, sess Session, st *State) {
	if s.reportSvc == nil {
		return
	}
	if err := s.reportSvc.SendDoctorReport(ctx, sess, st); err != nil {
		slog.Error("Failed to send doctor report",
			slog.String("session_id", sess.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	slog.Info("Doctor report sent", slog.String("session_id", sess.ID.String()))
}

func (s *service) GetReport(ctx context.Context, sessionID uuid.UUID, userID string) (*Report, error) {
	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	st := s.decode(sess)
	if !st.AnalysisComplete {
		return nil, oops.In("consultation").With("session_id", sessionID).Wrap(ErrReportNotReady)
	}

	return &Report{
		SessionID:       sess.ID,
		Analysis:        st.Analysis,
		Recommendations: st.Recommendations,
	}, nil
}

// Clear resets the conversation to a fresh initial state. The session keeps
// its id, owner and title.
func (s *service) Clear(ctx context.Context, sessionID uuid.UUID, userID string) (*Session, error) {
	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	st := NewState()
	st.Title = sess.Title
	if err := s.save(ctx, sess, st); err != nil {
		return nil, err
	}

	slog.Info("Consultation cleared", slog.String("session_id", sess.ID.String()))
	return sess, nil
}

func (s *service) CreateSession(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidInput(errors.New("user id is required"))
	}

	sess := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.save(ctx, sess, NewState()); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *service) GetSession(ctx context.Context, sessionID uuid.UUID, userID string) (*SessionDetail, error) {
	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: *sess, State: s.decode(sess)}, nil
}

func (s *service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidInput(errors.New("user id is required"))
	}

	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "list sessions")
	}
	return sessions, nil
}

func (s *service) RenameSession(ctx context.Context, sessionID uuid.UUID, userID, title string) (*Session, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > 200 || !utf8.ValidString(title) {
		return nil, invalidInput(errors.New("title must be 1 to 200 characters"))
	}

	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	st := s.decode(sess)
	st.Title = title
	if err := s.save(ctx, sess, st); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *service) DeleteSession(ctx context.Context, sessionID uuid.UUID, userID string) error {
	if _, err := s.load(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return storeError(err, "delete session")
	}

	slog.Info("Consultation deleted", slog.String("session_id", sessionID.String()))
	return nil
}
