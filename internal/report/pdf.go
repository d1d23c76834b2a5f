package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ms-health-assistant/internal/consultation"

	"github.com/samber/oops"
	"github.com/signintech/gopdf"
)

// DefaultFontPaths are the usual DejaVuSans locations on Alpine and Debian.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily = "DejaVu"
	textWidth  = 500
	pageBottom = 780
	pageTop    = 40
)

type PDFRenderer struct {
	fontPaths []string
	now       func() time.Time
}

func NewPDFRenderer(fontPaths []string) *PDFRenderer {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &PDFRenderer{fontPaths: fontPaths, now: time.Now}
}

// RenderPDF lays out the analysis and recommendations of a finished
// consultation on A4 pages.
func (p *PDFRenderer) RenderPDF(sess consultation.Session, st *consultation.State) ([]byte, error) {
	errb := oops.In("report").With("session_id", sess.ID)

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := p.loadFont(&pdf); err != nil {
		return nil, errb.Wrap(err)
	}

	w := &pdfWriter{pdf: &pdf}

	w.font(20)
	w.line("MS Consultation Report", 30)

	w.font(12)
	w.line(fmt.Sprintf("Date: %s", p.now().Format("02.01.2006 15:04")), 15)
	w.line(fmt.Sprintf("Session: %s", sess.ID), 15)
	w.line(fmt.Sprintf("Title: %s", st.Title), 25)

	w.font(14)
	w.line("Analysis", 18)
	w.font(11)
	w.paragraphs(st.Analysis)

	w.font(14)
	w.line("Recommendations", 18)
	w.font(11)
	w.paragraphs(st.Recommendations)

	w.font(9)
	w.line("Generated by a rule-based assistant. This is not a medical diagnosis.", 12)

	if w.err != nil {
		return nil, errb.Wrapf(w.err, "failed to lay out PDF")
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, errb.Wrapf(err, "failed to write PDF")
	}
	return buf.Bytes(), nil
}

func (p *PDFRenderer) loadFont(pdf *gopdf.GoPdf) error {
	var fontErr error
	for _, path := range p.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			fontErr = err
			continue
		}
		slog.Debug("Loaded PDF font", slog.String("path", path))
		return nil
	}
	return oops.
		With("paths", p.fontPaths).
		Wrapf(fontErr, "failed to load font for PDF, ensure DejaVuSans is installed")
}

// pdfWriter keeps the first layout error so the caller checks once.
type pdfWriter struct {
	pdf  *gopdf.GoPdf
	size float64
	err  error
}

func (w *pdfWriter) font(size float64) {
	if w.err != nil {
		return
	}
	w.size = size
	w.err = w.pdf.SetFont(fontFamily, "", size)
}

func (w *pdfWriter) line(text string, advance float64) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY()+advance > pageBottom {
		w.pdf.AddPage()
		w.pdf.SetY(pageTop)
	}
	w.err = w.pdf.Cell(nil, text)
	w.pdf.Br(advance)
}

func (w *pdfWriter) paragraphs(text string) {
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.TrimSpace(para) == "" {
			w.gap(6)
			continue
		}
		lines, err := w.pdf.SplitText(para, textWidth)
		if err != nil {
			lines = []string{para}
		}
		for _, l := range lines {
			w.line(l, w.size+3)
		}
	}
	w.gap(12)
}

func (w *pdfWriter) gap(h float64) {
	if w.err == nil {
		w.pdf.Br(h)
	}
}
