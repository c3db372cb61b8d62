// Package remarks renders the free-text remarks attached to demand decisions.
// Remarks are stored as typed; they are rendered through Markdown and
// sanitised on the way out.
package remarks

import (
	"bytes"
	"html"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MaxLength is the longest remark accepted, in characters.
const MaxLength = 2000

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

// Normalize trims the remark, unifies line endings and caps its length.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxLength {
		s = string([]rune(s)[:MaxLength])
	}
	return s
}

// Render converts a Markdown remark to sanitised HTML.
func Render(s string) template.HTML {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(ugc.SanitizeBytes(buf.Bytes()))
}

// Plain strips every tag and returns text suitable for a spreadsheet cell or
// a log line.
func Plain(s string) string {
	text := strict.Sanitize(string(Render(s)))
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
