package flow

import (
	"github.com/innerjoy/funnel/internal/config"
	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/slots"
	"github.com/innerjoy/funnel/internal/templates"
)

// Composer renders templates for a contact from its current fields. Both the
// conversation engine and the dispatcher use it so a scheduled message
// always reflects the contact as it is at send time.
type Composer struct {
	Templates  *templates.Renderer
	Calendar   *slots.Calendar
	Links      config.Links
	InviteLink string
}

func (c Composer) Data(ct *models.Contact) templates.Data {
	return templates.Data{
		Name:             DisplayName(ct),
		Slot:             c.Calendar.Display(ct.ChosenSlot),
		Day:              slots.DayName(ct.SelectedDay),
		ZoomLink:         c.Links.Zoom,
		ZoomDownloadLink: c.Links.ZoomDownload,
		RegistrationLink: c.Links.Registration,
		MembershipLink:   c.Links.Membership,
		TrialLink:        c.Links.Trial,
		InviteLink:       c.InviteLink,
		MemberZoomLink:   c.Links.MemberZoom,
		YouTubeLink:      c.Links.YouTube,
		SenderName:       c.Links.SenderName,
	}
}

func (c Composer) Render(code string, ct *models.Contact) (string, error) {
	return c.Templates.Render(code, c.Data(ct))
}
