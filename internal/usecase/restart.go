package usecase

import "strings"

// restartKeywords is the fixed set of reset commands. Matching is
// case-insensitive and ignores surrounding whitespace.
var restartKeywords = map[string]struct{}{
	"restart":  {},
	"begin":    {},
	"commence": {},
	"initiate": {},
	"launch":   {},
	"start":    {},
	"demo":     {},
	"go":       {},
	"reset":    {},
	"clear":    {},
}

// IsRestart reports whether a message body is a session-reset command.
func IsRestart(body string) bool {
	_, ok := restartKeywords[strings.ToLower(strings.TrimSpace(body))]
	return ok
}
