// ABOUTME: Permissive extraction of JSON payloads from model output.
// ABOUTME: Tolerates leading and trailing prose; shape failures yield empty results, never errors.
package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sporelabs/shroomboard/render"
)

// htmlCache deduplicates markdown conversion across retries and repeated
// fallback samples. Keyed by content hash, so identical bodies convert once.
var htmlCache = render.NewCache(render.MarkdownToHTML, time.Hour)

// Draft is one generated card candidate. Fallback marks drafts synthesized
// from the local idea pool after the backend failed, so callers can surface
// a failure notice.
type Draft struct {
	Title    string `json:"title"`
	HTMLBody string `json:"content"`
	Fallback bool   `json:"fallback,omitempty"`
}

// ExtractJSONArray returns the first top-level JSON array substring in s.
// Model responses often wrap the payload in prose ("Here you go:\n[...]"),
// so this scans for a balanced bracket span instead of parsing the whole
// body. String literals and escapes are respected during the scan.
func ExtractJSONArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

// ExtractJSONObject returns the first top-level JSON object substring in s.
func ExtractJSONObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

func extractBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// draftWire is the shape the model is asked to produce per card.
type draftWire struct {
	Title   *string `json:"title"`
	Content string  `json:"content"`
}

// ParseDrafts extracts card drafts from a raw model response. Elements
// without a string title are dropped; titles are trimmed; content is
// unescaped and converted from markdown to sanitized HTML. Any parse or
// shape failure yields an empty slice.
func ParseDrafts(content string) []Draft {
	arr, ok := ExtractJSONArray(content)
	if !ok {
		return nil
	}

	var wires []draftWire
	if err := json.Unmarshal([]byte(arr), &wires); err != nil {
		return nil
	}

	var drafts []Draft
	for _, w := range wires {
		if w.Title == nil {
			continue
		}
		title := strings.TrimSpace(*w.Title)
		if title == "" {
			continue
		}
		drafts = append(drafts, Draft{
			Title:    title,
			HTMLBody: htmlCache.Convert(w.Content),
		})
	}
	return drafts
}
