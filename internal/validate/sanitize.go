package validate

import (
	"errors"
	"regexp"
	"strings"
)

// ErrSQLShaped is returned by Sanitize when content matches the SQL-shape
// deny list (spec.md §4.4) — such input is rejected outright rather than
// escaped.
var ErrSQLShaped = errors.New("content matches a disallowed SQL-like pattern")

// xssPatterns strips the tag/scheme/attribute shapes spec.md §4.4 names
// explicitly, generalized from the teacher's SanitizeString (which only
// stripped control bytes) into a real deny-list scanner — no HTML
// sanitizer library exists anywhere in the pack (see DESIGN.md).
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script[^>]*>.*?<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)<\s*script[^>]*>`),
	regexp.MustCompile(`(?i)<\s*iframe[^>]*>`),
	regexp.MustCompile(`(?i)<\s*object[^>]*>`),
	regexp.MustCompile(`(?i)<\s*embed[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)\son[a-z]+\s*=\s*["'][^"']*["']`), // inline event attrs, e.g. onclick="..."
}

// sqlDenyList rejects content shaped like an injection attempt rather
// than trying to escape it.
var sqlDenyList = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|;\s*--|'\s*or\s+'1'\s*=\s*'1)`),
	regexp.MustCompile(`(?i)\b(insert\s+into|delete\s+from)\b.*\b(values|where)\b`),
}

var controlBytes = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

var whitespaceRun = regexp.MustCompile(`\s{3,}`)

// ampEscape matches a bare "&" that isn't already the start of one of the
// entities this package emits, so re-running escapeHTML on its own output
// leaves already-escaped entities alone instead of re-escaping their "&"
// into "&amp;" (spec.md §8's sanitize round-trip property).
var ampEscape = regexp.MustCompile(`&(?:amp|lt|gt|quot|#39|#47);|&`)

var restEscaper = strings.NewReplacer(
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&#39;",
	`/`, "&#47;",
)

// escapeHTML escapes HTML metacharacters idempotently: calling it twice on
// its own output is a no-op, since the other metacharacters (<, >, ", ',
// /) no longer appear raw in escaped output and the ampersand pass skips
// entities it already produced.
func escapeHTML(s string) string {
	s = ampEscape.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
	return restEscaper.Replace(s)
}

// Sanitize implements spec.md §4.4's `sanitize(content)`: strips
// XSS-shaped patterns, rejects SQL-shaped input, escapes HTML
// metacharacters, strips control bytes, and collapses long whitespace
// runs.
func Sanitize(content string) (string, error) {
	for _, re := range sqlDenyList {
		if re.MatchString(content) {
			return "", ErrSQLShaped
		}
	}

	out := content
	for _, re := range xssPatterns {
		out = re.ReplaceAllString(out, "")
	}

	out = escapeHTML(out)
	out = controlBytes.ReplaceAllString(out, "")
	out = whitespaceRun.ReplaceAllString(out, "  ")
	out = strings.TrimSpace(out)

	return out, nil
}
