package templates

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var ErrUnknownTemplate = errors.New("templates: unknown template code")

// Template codes. Scheduled rows store these verbatim.
const (
	NameRequest        = "NAME_REQUEST"
	NameRequestOrganic = "NAME_REQUEST_ORGANIC"
	DayOptions         = "DAY_OPTIONS"
	DayReprompt        = "DAY_REPROMPT"
	TimeOptions        = "TIME_OPTIONS"
	TimeReprompt       = "TIME_REPROMPT"
	CombinedReprompt   = "COMBINED_REPROMPT"
	SlotConfirmed      = "SLOT_CONFIRMED"
	InviteCard         = "INVITE_CARD"

	Reminder12H       = "REMINDER_12H"
	Reminder12HThumbs = "REMINDER_12H_THUMBS"
	Reminder60M       = "REMINDER_60M"
	Reminder10M       = "REMINDER_10M"
	SalesS1           = "SALES_S1"
	SalesShakeup      = "SALES_SHAKEUP"
	SalesS2           = "SALES_S2"
	SalesS3           = "SALES_S3"

	FallbackRA = "FALLBACK_RA"
	FallbackRB = "FALLBACK_RB"
	FallbackS1 = "FALLBACK_S1"
	FallbackS2 = "FALLBACK_S2"

	Reinvite      = "REINVITE"
	MemberWelcome = "MEMBER_WELCOME"
	TrialWelcome  = "TRIAL_WELCOME"
)

var (
	ReminderCodes = []string{Reminder12H, Reminder60M, Reminder10M}
	SalesCodes    = []string{SalesS1, SalesShakeup, SalesS2, SalesS3}
	FallbackCodes = []string{FallbackRA, FallbackRB, FallbackS1, FallbackS2}
	// CascadeCodes is everything enqueued on slot confirmation.
	CascadeCodes = append(append([]string{}, ReminderCodes...), SalesCodes...)
)

func IsFallback(code string) bool { return contains(FallbackCodes, code) }
func IsReminder(code string) bool { return contains(ReminderCodes, code) }
func IsSales(code string) bool    { return contains(SalesCodes, code) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Data is everything a template may reference. Empty fields are left out of
// the render map so a template that needs them fails loudly.
type Data struct {
	Name             string
	Slot             string
	Day              string
	ZoomLink         string
	ZoomDownloadLink string
	RegistrationLink string
	MembershipLink   string
	TrialLink        string
	InviteLink       string
	MemberZoomLink   string
	YouTubeLink      string
	SenderName       string
}

func (d Data) fields() map[string]string {
	m := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("Name", d.Name)
	put("Slot", d.Slot)
	put("Day", d.Day)
	put("ZoomLink", d.ZoomLink)
	put("ZoomDownloadLink", d.ZoomDownloadLink)
	put("RegistrationLink", d.RegistrationLink)
	put("MembershipLink", d.MembershipLink)
	put("TrialLink", d.TrialLink)
	put("InviteLink", d.InviteLink)
	put("MemberZoomLink", d.MemberZoomLink)
	put("YouTubeLink", d.YouTubeLink)
	put("SenderName", d.SenderName)
	return m
}

// Renderer holds parsed templates keyed by code.
type Renderer struct {
	set map[string]*template.Template
}

// New parses every template up front so syntax errors surface at startup.
func New(src map[string]string) (*Renderer, error) {
	r := &Renderer{set: make(map[string]*template.Template, len(src))}
	for code, text := range src {
		t, err := template.New(code).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", code, err)
		}
		r.set[code] = t
	}
	return r, nil
}

// Default returns a Renderer over the built-in message catalogue.
func Default() *Renderer {
	r, err := New(Catalogue)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Has(code string) bool {
	_, ok := r.set[code]
	return ok
}

func (r *Renderer) Render(code string, d Data) (string, error) {
	t, ok := r.set[code]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, code)
	}
	var b strings.Builder
	if err := t.Execute(&b, d.fields()); err != nil {
		return "", fmt.Errorf("templates: render %s: %w", code, err)
	}
	return b.String(), nil
}
