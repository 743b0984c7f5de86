package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// GreetingReply answers a purely social message.
const GreetingReply = "Hello! Ask me anything about the documents in this knowledge base."

var greetings = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"hiya":           true,
	"howdy":          true,
	"greetings":      true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
	"hi there":       true,
	"hello there":    true,
	"hey there":      true,
}

var folder = cases.Fold()

// Normalize strips punctuation and symbols, case-folds and collapses
// whitespace.
func Normalize(q string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, q)
	return strings.Join(strings.Fields(folder.String(stripped)), " ")
}

// IsGreeting reports whether q normalizes to a known greeting.
func IsGreeting(q string) bool {
	return greetings[Normalize(q)]
}
