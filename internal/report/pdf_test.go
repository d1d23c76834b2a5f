package report

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPDF(t *testing.T) {
	found := false
	for _, p := range DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("DejaVuSans is not installed")
	}

	sess, st := reportFixture(t)
	data, err := NewPDFRenderer(nil).RenderPDF(sess, st)
	require.NoError(t, err)
	assert.True(t, len(data) > 4 && string(data[:4]) == "%PDF")
}

func TestRenderPDFMissingFont(t *testing.T) {
	sess, st := reportFixture(t)

	_, err := NewPDFRenderer([]string{"/nonexistent/font.ttf"}).RenderPDF(sess, st)
	assert.Error(t, err)
}
