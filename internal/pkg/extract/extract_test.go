package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlainFiles(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
	}{
		{"txt", "notes.txt", "plain text body"},
		{"markdown", "README.md", "# Title\n\nsome markdown"},
		{"uppercase extension", "NOTES.TXT", "case insensitive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Text([]byte(tt.data), tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.data, text)
		})
	}
}

func TestTextUnsupportedFormat(t *testing.T) {
	tests := []string{"image.png", "archive.zip", "legacy.doc", "noextension"}

	for _, filename := range tests {
		t.Run(filename, func(t *testing.T) {
			_, err := Text([]byte("data"), filename)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Contains(t, err.Error(), filename)
		})
	}
}

func TestTextInvalidPDF(t *testing.T) {
	_, err := Text([]byte("not a real pdf"), "broken.pdf")
	assert.Error(t, err)
}

func TestTextDOCXDispatch(t *testing.T) {
	// Not a zip container, so parsing fails, but the format itself is
	// accepted rather than rejected as unsupported.
	_, err := Text([]byte("not a docx"), "report.docx")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}
