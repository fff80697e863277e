package conversation

import (
	"strings"

	"golang.org/x/text/cases"
)

// restartPhrases abort the conversation from any step when they appear
// anywhere in a message, ignoring case.
var restartPhrases = []string{"restart", "start over", "reset", "begin again", "new order", "menu"}

func isRestart(text string) bool {
	if text == "" {
		return false
	}
	// Casers are stateful; build one per call.
	folded := cases.Fold().String(text)
	for _, p := range restartPhrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}
