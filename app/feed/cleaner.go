package feed

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

const ellipsis = "..."

// Trailers that feeds append to descriptions. A trailer starts the text or
// follows sentence punctuation or a bracket, and must be the last clause;
// group 1 keeps that punctuation.
const (
	trailerLead    = `(^|[.…!?。！？»\])）】])`
	trailerLeadCJK = `(^|[\s.…!?。！？»\])）】])`
	trailerTail    = `[^.!?。！？]{0,60}[.…!?。！？»\])\s]*$`
)

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)` + trailerLead + `\s*[\[(]?\s*(?:read more|continue reading|read the full (?:story|article))\b` + trailerTail),
	regexp.MustCompile(`(?i)` + trailerLead + `\s*the post .+? appeared first on ` + trailerTail),
	regexp.MustCompile(`(?i)` + trailerLead + `\s*scan (?:the )?(?:qr )?code\b` + trailerTail),
	regexp.MustCompile(trailerLeadCJK + `\s*(?:扫码|扫描二维码|长按识别|阅读原文|点击查看|点击阅读)` + trailerTail),
}

// CleanText strips markup, normalizes to NFC, collapses whitespace and
// removes known boilerplate trailers.
func CleanText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	}

	text = norm.NFC.String(text)
	text = strings.Join(strings.Fields(text), " ")

	for _, pattern := range boilerplatePatterns {
		text = pattern.ReplaceAllString(text, "${1}")
	}

	return strings.TrimSpace(text)
}

// Truncate limits s to max runes, appending an ellipsis when it was cut.
// A non-positive max leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + ellipsis
}
