package services

import (
	"errors"
	"regexp"
	"strings"
)

var ErrBadIdentity = errors.New("services: identity has no phone digits")

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, ., (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-.\s\(\)]+$`)
	// + followed by 6..15 digits
	reKey = regexp.MustCompile(`^\+[0-9]{6,15}$`)
)

// NormPhone normalizes a phone number to a +digits contact key.
// Rules: strip spaces/dashes/dots/parens; 00.. -> +..; ensure leading +.
// Returns "" when the input is not a phone number.
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" {
		return ""
	}
	if reLetters.MatchString(s) {
		return ""
	}
	if !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\t", "", "\n", "", "\r", "")
	s = repl.Replace(s)

	// 00.. -> +..
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	// a plus only at the front
	if strings.Contains(s[1:], "+") {
		return ""
	}
	return s
}

// ContactKey picks the first of ids that normalizes to a valid key. Cloud API
// payloads carry both wa_id and the raw sender number; either may be missing.
func ContactKey(ids ...string) (string, error) {
	for _, id := range ids {
		if k := NormPhone(id); reKey.MatchString(k) {
			return k, nil
		}
	}
	return "", ErrBadIdentity
}
