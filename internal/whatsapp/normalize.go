package whatsapp

import (
	"regexp"
	"strings"
)

var (
	bracketNoise = regexp.MustCompile(`【.*?】`)
	doubleStars  = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// Normalize rewrites model output for WhatsApp: 【…】 annotation spans are
// dropped, surrounding whitespace trimmed and **bold** becomes *bold*.
// The rewrite runs to a fixed point, so Normalize is idempotent.
func Normalize(text string) string {
	for {
		next := normalizeOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

// normalizeOnce either returns its input or a strictly shorter string.
func normalizeOnce(text string) string {
	text = strings.TrimSpace(bracketNoise.ReplaceAllString(text, ""))
	return doubleStars.ReplaceAllString(text, "*$1*")
}
