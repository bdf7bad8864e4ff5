package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHTML(t *testing.T) {
	n := New(nil)
	raw := []byte(`<html><body><style>.x{}</style><script>evil()</script>
<p>First paragraph &amp; more.</p><p>Second paragraph.</p></body></html>`)

	text, err := n.Normalize("text/html", "https://example.com/a", raw)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph & more.")
	assert.NotContains(t, text, "evil()")
	assert.NotContains(t, text, ".x{}")
}

func TestNormalizeTruncatesParagraphsAndChars(t *testing.T) {
	n := New(nil)
	paragraphs := make([]string, 5)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat("word ", 100)
	}
	raw := []byte(strings.Join(paragraphs, "\n\n"))

	text, err := n.Normalize("text/plain", "https://example.com/b", raw)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), maxChars)
	assert.LessOrEqual(t, len(strings.Split(text, "\n\n")), maxParagraphs)
}

func TestIsPDFDetection(t *testing.T) {
	assert.True(t, isPDF("application/pdf", "", nil))
	assert.True(t, isPDF("", "https://example.com/doc.pdf", nil))
	assert.True(t, isPDF("", "", []byte("%PDF-1.4")))
	assert.False(t, isPDF("text/html", "https://example.com/a", []byte("<html>")))
}

type fakeDelegate struct{ err error }

func (f fakeDelegate) Normalize(contentType, url string, raw []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "delegate output", nil
}

func TestSandboxedFallsBackOnDelegateError(t *testing.T) {
	s := NewSandboxed(fakeDelegate{err: errors.New("sandbox unavailable")}, nil)
	text, err := s.Normalize("text/plain", "https://example.com/c", []byte("plain text body"))
	require.NoError(t, err)
	assert.Contains(t, text, "plain text body")
}

func TestSandboxedUsesDelegateWhenHealthy(t *testing.T) {
	s := NewSandboxed(fakeDelegate{}, nil)
	text, err := s.Normalize("text/plain", "https://example.com/d", []byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "delegate output", text)
}
