package report

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"ms-health-assistant/internal/consultation"

	"github.com/samber/oops"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

type Renderer interface {
	RenderPDF(sess consultation.Session, st *consultation.State) ([]byte, error)
}

// telegramTextLimit is the longest message the Bot API accepts.
const telegramTextLimit = 4096

// Service forwards finished consultations to the clinician chat.
type Service struct {
	tgClient     TelegramClient
	renderer     Renderer
	doctorChatID int64
}

func NewService(tg TelegramClient, renderer Renderer, doctorChatID int64) *Service {
	return &Service{
		tgClient:     tg,
		renderer:     renderer,
		doctorChatID: doctorChatID,
	}
}

// Enabled reports whether reports have somewhere to go.
func (s *Service) Enabled() bool {
	return s.tgClient != nil && s.doctorChatID != 0
}

// SendDoctorReport delivers the PDF report, or the plain text when the PDF
// cannot be rendered. It does nothing when no clinician chat is configured.
func (s *Service) SendDoctorReport(ctx context.Context, sess consultation.Session, st *consultation.State) error {
	if !s.Enabled() {
		slog.Debug("Doctor report skipped, no chat configured", slog.String("session_id", sess.ID.String()))
		return nil
	}
	errb := oops.In("report").With("session_id", sess.ID, "chat_id", s.doctorChatID)

	if s.renderer != nil {
		data, err := s.renderer.RenderPDF(sess, st)
		if err == nil {
			fileName := fmt.Sprintf("report_%s.pdf", sess.ID)
			if err := s.tgClient.SendDocument(ctx, s.doctorChatID, data, fileName); err != nil {
				return errb.Wrapf(err, "failed to send PDF report")
			}
			return nil
		}
		slog.Warn("PDF report unavailable, sending text",
			slog.String("session_id", sess.ID.String()),
			slog.Any("error", err),
		)
	}

	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, TextReport(sess, st)); err != nil {
		return errb.Wrapf(err, "failed to send text report")
	}
	return nil
}

// TextReport renders a consultation as a single chat message.
func TextReport(sess consultation.Session, st *consultation.State) string {
	text := fmt.Sprintf("MS consultation %s\n%s\n\n%s\nRecommendations:\n%s",
		sess.ID, st.Title, st.Analysis, st.Recommendations)
	if utf8.RuneCountInString(text) > telegramTextLimit {
		text = string([]rune(text)[:telegramTextLimit-1]) + "…"
	}
	return text
}
