package window

import (
	"strings"
	"time"

	"github.com/innerjoy/funnel/internal/models"
)

// Policy decides how long the outbound window stays open after an inbound
// message, and which contacts count as organic.
type Policy struct {
	TriggerPhrase string
	Organic       time.Duration
	PaidAd        time.Duration
}

// ClassifySource returns stored unchanged once it is set; otherwise the
// trigger phrase decides.
func (p Policy) ClassifySource(text string, stored models.Source) models.Source {
	if stored != models.SourceUnknown {
		return stored
	}
	phrase := strings.ToLower(strings.TrimSpace(p.TriggerPhrase))
	if phrase != "" && strings.Contains(strings.ToLower(text), phrase) {
		return models.SourceOrganic
	}
	return models.SourcePaidAd
}

// Duration of the window for src. Unknown sources get the organic (shorter) window.
func (p Policy) Duration(src models.Source) time.Duration {
	if src == models.SourcePaidAd {
		return p.PaidAd
	}
	return p.Organic
}

// Reset records inbound activity and returns the new expiry.
func (p Policy) Reset(c *models.Contact, now time.Time) time.Time {
	exp := now.Add(p.Duration(c.Source))
	in := now
	c.LastInboundAt = &in
	c.WindowExpiresAt = &exp
	return exp
}

// IsWithin is inclusive at the expiry instant.
func (p Policy) IsWithin(c *models.Contact, now time.Time) bool {
	if c == nil || c.WindowExpiresAt == nil {
		return false
	}
	return !now.After(*c.WindowExpiresAt)
}
