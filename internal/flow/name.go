package flow

import (
	"strings"
	"unicode"

	"github.com/innerjoy/funnel/internal/models"
)

// ExtractName takes the first word of a reply as a first name, trimmed of
// punctuation and capitalized. A word without letters yields "".
func ExtractName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	w := strings.TrimFunc(fields[0], func(r rune) bool { return !unicode.IsLetter(r) })
	if w == "" {
		return ""
	}
	r := []rune(strings.ToLower(w))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// DisplayName is how a contact is greeted in templates.
func DisplayName(c *models.Contact) string {
	if c == nil || c.Name == "" {
		return "there"
	}
	return c.Name
}
