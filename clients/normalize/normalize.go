// Package normalize implements the ContentNormalizer contract: turn raw
// fetched bytes (HTML, PDF, or plain text) into a clean, compact text block
// suitable as LLM context.
package normalize

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hermesagent/hermes/core"
	"github.com/ledongthuc/pdf"
)

const (
	maxParagraphs = 3
	maxChars      = 2000
)

// Normalizer is the interface stages depend on.
type Normalizer interface {
	Normalize(contentType, url string, raw []byte) (string, error)
}

// Default is the in-process implementation. Sandboxed wraps it to add a
// sandboxed-process hook without changing the interface.
type Default struct {
	Logger core.Logger
}

func New(logger core.Logger) *Default {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Default{Logger: logger}
}

// Sandboxed wraps a delegate Normalizer (e.g. one that shells out to an
// isolated process or container) and falls back to the in-process Default
// when the delegate is unavailable. The fallback is logged but semantically
// equivalent — callers never see a different contract, only a different
// execution environment.
type Sandboxed struct {
	Delegate Normalizer
	Fallback *Default
}

func NewSandboxed(delegate Normalizer, logger core.Logger) *Sandboxed {
	return &Sandboxed{Delegate: delegate, Fallback: New(logger)}
}

func (s *Sandboxed) Normalize(contentType, url string, raw []byte) (string, error) {
	if s.Delegate != nil {
		text, err := s.Delegate.Normalize(contentType, url, raw)
		if err == nil {
			return text, nil
		}
		s.Fallback.Logger.Warn("sandboxed normalizer unavailable, using in-process fallback", map[string]interface{}{
			"url": url, "error": err.Error(),
		})
	}
	return s.Fallback.Normalize(contentType, url, raw)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"article": true, "section": true, "blockquote": true,
}

func (d *Default) Normalize(contentType, url string, raw []byte) (string, error) {
	if isPDF(contentType, url, raw) {
		text, err := extractPDF(raw)
		if err != nil {
			d.Logger.Warn("pdf extraction failed, falling back to raw text", map[string]interface{}{
				"url": url, "error": err.Error(),
			})
			return truncate(string(raw)), nil
		}
		return truncate(text), nil
	}
	if isHTML(contentType, raw) {
		text, err := extractHTML(raw)
		if err != nil {
			return truncate(string(raw)), nil
		}
		return truncate(text), nil
	}
	return truncate(string(raw)), nil
}

func isPDF(contentType, url string, raw []byte) bool {
	if strings.Contains(contentType, "application/pdf") {
		return true
	}
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func isHTML(contentType string, raw []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(raw)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

func extractHTML(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		walkText(body, &b)
	})
	if b.Len() == 0 {
		walkText(doc.Selection, &b)
	}

	text := html.UnescapeString(b.String())
	return collapseWhitespace(text), nil
}

func walkText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			b.WriteString(node.Text())
			return
		}
		if blockTags[goquery.NodeName(node)] {
			walkText(node, b)
			b.WriteString("\n")
			return
		}
		walkText(node, b)
	})
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

func collapseWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func extractPDF(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// truncate caps text to maxParagraphs paragraphs and maxChars characters
// (spec §4.5).
func truncate(text string) string {
	text = collapseWhitespace(text)
	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) > maxParagraphs {
		paragraphs = paragraphs[:maxParagraphs]
	}
	joined := strings.Join(paragraphs, "\n\n")
	if len(joined) > maxChars {
		joined = joined[:maxChars]
	}
	return joined
}
