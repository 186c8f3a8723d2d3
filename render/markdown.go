// ABOUTME: Converts model-produced markdown into sanitized HTML for card bodies.
// ABOUTME: Goldmark handles the markdown pass; bluemonday strips anything unsafe afterwards.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

var policy = bluemonday.UGCPolicy()

// md passes raw HTML through so the sanitizer sees real elements to strip
// instead of pre-escaped text; bluemonday owns the safety pass.
var md = goldmark.New(goldmark.WithRendererOptions(ghtml.WithUnsafe()))

// MarkdownToHTML converts a markdown string to sanitized HTML. LLM output
// arrives with literal "\n" escapes inside JSON string values; those are
// unescaped before the markdown pass. Conversion failures degrade to the
// escaped input rather than an error.
func MarkdownToHTML(input string) string {
	unescaped := Unescape(input)

	var buf bytes.Buffer
	if err := md.Convert([]byte(unescaped), &buf); err != nil {
		return html.EscapeString(unescaped)
	}
	return policy.Sanitize(buf.String())
}

// Unescape converts the literal two-character sequences "\n" and "\t" that
// survive JSON extraction into real whitespace.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	return s
}
