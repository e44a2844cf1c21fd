package validate

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a blake2b-256 digest of sanitized message content
// (spec.md §4.4). Callers keep a bounded ring of these per room instead
// of retaining raw message text for duplicate detection.
type Fingerprint [32]byte

// Fingerprint256 hashes sanitized content with blake2b-256. Repurposed
// from the teacher's golang.org/x/crypto import, which only used
// bcrypt for password hashing — this spec has no passwords, but the
// same module gives us a fast, collision-resistant digest for
// duplicate-message comparison without keeping raw strings around.
func Fingerprint256(sanitizedContent string) Fingerprint {
	return blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(sanitizedContent))))
}

// suspiciousLinkDomains is a small deny list of short-URL domains
// spec.md §4.4 criterion (d) flags as spam signals.
var suspiciousLinkDomains = []string{
	"bit.ly", "tinyurl.com", "t.co", "goo.gl", "ow.ly", "is.gd", "buff.ly",
}

// SpamScore implements spec.md §4.4's five-criterion heuristic over
// sanitized content: score is incremented once per criterion that
// matches, and isSpam is true once score reaches 2.
func SpamScore(sanitized string, recent []Fingerprint) (score int, isSpam bool) {
	if hasDominantWord(sanitized) {
		score++
	}
	if hasExcessiveCapitals(sanitized) {
		score++
	}
	fp := Fingerprint256(sanitized)
	if isDuplicate(fp, recent) {
		score++
	}
	if hasSuspiciousLink(sanitized) {
		score++
	}
	if len(sanitized) > (ContentMaxLen*80)/100 {
		score++
	}
	return score, score >= 2
}

// hasDominantWord flags content where a single word makes up more than
// 40% of all tokens — criterion (a).
func hasDominantWord(content string) bool {
	words := strings.Fields(strings.ToLower(content))
	if len(words) < 3 {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	for _, c := range counts {
		if float64(c)/float64(len(words)) > 0.4 {
			return true
		}
	}
	return false
}

// hasExcessiveCapitals flags content longer than 10 characters that is
// more than 90% uppercase letters — criterion (b).
func hasExcessiveCapitals(content string) bool {
	if len(content) <= 10 {
		return false
	}
	var letters, upper int
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(upper)/float64(letters) > 0.9
}

// isDuplicate flags content matching any fingerprint in the recent
// ring — criterion (c).
func isDuplicate(fp Fingerprint, recent []Fingerprint) bool {
	for _, r := range recent {
		if r == fp {
			return true
		}
	}
	return false
}

// hasSuspiciousLink flags content containing a known short-URL domain
// — criterion (d).
func hasSuspiciousLink(content string) bool {
	lower := strings.ToLower(content)
	for _, domain := range suspiciousLinkDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}
