package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownSlot = errors.New("slots: unknown slot code")

type clock struct{ hour, min int }

var days = map[string]time.Weekday{
	"S": time.Saturday,
	"U": time.Sunday,
}

var times = map[string]clock{
	"A": {15, 30},
	"B": {19, 30},
	"C": {20, 0},
	"D": {20, 30},
	"E": {21, 0},
}

// DayCodes and TimeCodes in display order.
var (
	DayCodes  = []string{"S", "U"}
	TimeCodes = []string{"A", "B", "C", "D", "E"}
)

// Slot is one recurring weekly session.
type Slot struct {
	Code    string
	Weekday time.Weekday
	Hour    int
	Minute  int
}

// Calendar resolves slot codes against a fixed timezone.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar in loc. A nil loc falls back to UTC+7.
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.FixedZone("UTC+7", 7*3600)
	}
	return &Calendar{loc: loc}
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Normalize trims and upper-cases a user selector.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func IsDay(s string) bool {
	_, ok := days[Normalize(s)]
	return ok
}

func IsTime(s string) bool {
	_, ok := times[Normalize(s)]
	return ok
}

// Combine joins a day and time selector into a slot code ("S"+"B" = "SB").
func Combine(day, tm string) (string, error) {
	code := Normalize(day) + Normalize(tm)
	if _, err := Lookup(code); err != nil {
		return "", err
	}
	return code, nil
}

// Lookup validates a two-letter slot code.
func Lookup(code string) (Slot, error) {
	code = Normalize(code)
	if len(code) != 2 {
		return Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, code)
	}
	wd, ok := days[code[:1]]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, code)
	}
	ck, ok := times[code[1:]]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q", ErrUnknownSlot, code)
	}
	return Slot{Code: code, Weekday: wd, Hour: ck.hour, Minute: ck.min}, nil
}

// All returns every slot, Saturday first.
func All() []Slot {
	out := make([]Slot, 0, len(DayCodes)*len(TimeCodes))
	for _, d := range DayCodes {
		for _, t := range TimeCodes {
			s, _ := Lookup(d + t)
			out = append(out, s)
		}
	}
	return out
}

// NextOccurrence returns the next start of the slot at or after now.
// A slot starting exactly at now is not rolled to the following week.
func (c *Calendar) NextOccurrence(code string, now time.Time) (time.Time, error) {
	s, err := Lookup(code)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(c.loc)
	daysAhead := (int(s.Weekday) - int(local.Weekday()) + 7) % 7
	at := time.Date(local.Year(), local.Month(), local.Day()+daysAhead, s.Hour, s.Minute, 0, 0, c.loc)
	if daysAhead == 0 && local.After(at) {
		at = time.Date(local.Year(), local.Month(), local.Day()+7, s.Hour, s.Minute, 0, 0, c.loc)
	}
	return at, nil
}

// NextWeekdayAt returns the first wd at hh:mm strictly after now.
func (c *Calendar) NextWeekdayAt(wd time.Weekday, hh, mm int, now time.Time) time.Time {
	local := now.In(c.loc)
	daysAhead := (int(wd) - int(local.Weekday()) + 7) % 7
	at := time.Date(local.Year(), local.Month(), local.Day()+daysAhead, hh, mm, 0, 0, c.loc)
	if !at.After(local) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

// Display renders e.g. "Saturday 19:30 (UTC+7)". Unknown codes give "".
func (c *Calendar) Display(code string) string {
	s, err := Lookup(code)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s %02d:%02d (%s)", s.Weekday, s.Hour, s.Minute, c.offsetLabel())
}

func (c *Calendar) offsetLabel() string {
	_, off := time.Now().In(c.loc).Zone()
	h, m := off/3600, (off%3600)/60
	if m < 0 {
		m = -m
	}
	if m == 0 {
		return fmt.Sprintf("UTC%+d", h)
	}
	return fmt.Sprintf("UTC%+d:%02d", h, m)
}

// DayName gives the weekday name for a day code, or "" if unknown.
func DayName(code string) string {
	wd, ok := days[Normalize(code)]
	if !ok {
		return ""
	}
	return wd.String()
}
