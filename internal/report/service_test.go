package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ms-health-assistant/internal/consultation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentDoc struct {
	chatID   int64
	data     []byte
	fileName string
}

type fakeTelegram struct {
	messages []string
	docs     []sentDoc
	err      error
}

func (f *fakeTelegram) SendMessage(_ context.Context, _ int64, text string) error {
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeTelegram) SendDocument(_ context.Context, chatID int64, data []byte, fileName string) error {
	f.docs = append(f.docs, sentDoc{chatID: chatID, data: data, fileName: fileName})
	return f.err
}

type fakeRenderer struct {
	data []byte
	err  error
}

func (f fakeRenderer) RenderPDF(consultation.Session, *consultation.State) ([]byte, error) {
	return f.data, f.err
}

func reportFixture(t *testing.T) (consultation.Session, *consultation.State) {
	st := completedState()
	g := newGenerator(t)
	st.Analysis = g.Analysis(st)
	st.Recommendations = g.Recommendations(st)
	st.AnalysisComplete = true
	return consultation.Session{ID: uuid.New(), UserID: "user@example.com"}, st
}

func TestSendDoctorReportPDF(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(tg, fakeRenderer{data: []byte("%PDF")}, 77)
	sess, st := reportFixture(t)

	require.NoError(t, svc.SendDoctorReport(context.Background(), sess, st))

	require.Len(t, tg.docs, 1)
	assert.Equal(t, int64(77), tg.docs[0].chatID)
	assert.Equal(t, "report_"+sess.ID.String()+".pdf", tg.docs[0].fileName)
	assert.Empty(t, tg.messages)
}

func TestSendDoctorReportFallsBackToText(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(tg, fakeRenderer{err: errors.New("no font")}, 77)
	sess, st := reportFixture(t)

	require.NoError(t, svc.SendDoctorReport(context.Background(), sess, st))

	assert.Empty(t, tg.docs)
	require.Len(t, tg.messages, 1)
	assert.Contains(t, tg.messages[0], "fatigue")
}

func TestSendDoctorReportDisabled(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(tg, fakeRenderer{data: []byte("%PDF")}, 0)
	sess, st := reportFixture(t)

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.SendDoctorReport(context.Background(), sess, st))
	assert.Empty(t, tg.docs)

	assert.False(t, NewService(nil, nil, 77).Enabled())
}

func TestSendDoctorReportError(t *testing.T) {
	tg := &fakeTelegram{err: errors.New("blocked")}
	svc := NewService(tg, fakeRenderer{data: []byte("%PDF")}, 77)
	sess, st := reportFixture(t)

	assert.Error(t, svc.SendDoctorReport(context.Background(), sess, st))
}

func TestTextReportTruncated(t *testing.T) {
	sess, st := reportFixture(t)
	st.Analysis = strings.Repeat("a", 5000)

	text := TextReport(sess, st)
	assert.Len(t, []rune(text), telegramTextLimit)
}
