// Package sanitize turns raw chapter documents into allow-listed markup.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// baseTags is the baseline safe set; paragraphs and images are added on top.
var baseTags = []string{
	"a", "abbr", "acronym", "b", "blockquote", "code",
	"em", "i", "li", "ol", "strong", "ul",
}

// Result is the sanitized form of one chapter. Lossy is set when the raw
// bytes could not be decoded and were sanitized as-is.
type Result struct {
	Content string
	Lossy   bool
}

// Sanitizer strips everything outside the chapter allow-list. It is safe for
// concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns a Sanitizer with the chapter allow-list.
func New() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(baseTags...)
	p.AllowElements("p", "img")
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	return &Sanitizer{policy: p}
}

// Sanitize decodes raw and applies the allow-list.
func (s *Sanitizer) Sanitize(raw []byte) Result {
	text, ok := Decode(raw)
	return Result{Content: s.SanitizeString(text), Lossy: !ok}
}

// SanitizeString applies the allow-list to already decoded text.
func (s *Sanitizer) SanitizeString(text string) string {
	return s.policy.Sanitize(text)
}

// Decode converts raw document bytes to text. A byte order mark selects
// UTF-8 or UTF-16; otherwise the input must be valid UTF-8. On failure the
// raw bytes are returned unchanged with ok=false.
func Decode(raw []byte) (string, bool) {
	t := unicode.BOMOverride(encoding.UTF8Validator)
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return string(raw), false
	}
	return string(out), true
}

// Paragraphs returns the text of each <p> element in sanitized content, in
// document order.
func Paragraphs(content string) []string {
	z := html.NewTokenizer(strings.NewReader(content))
	var (
		out   []string
		buf   strings.Builder
		depth int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.P {
				if depth == 0 {
					buf.Reset()
				}
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.P && depth > 0 {
				depth--
				if depth == 0 {
					out = append(out, strings.TrimSpace(buf.String()))
				}
			}
		case html.TextToken:
			if depth > 0 {
				buf.Write(z.Text())
			}
		}
	}
}
