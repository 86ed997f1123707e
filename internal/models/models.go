package models

import "time"

type Source string

const (
	SourceUnknown Source = ""
	SourcePaidAd  Source = "paid_ad"
	SourceOrganic Source = "organic"
)

type Tree string

const (
	TreePrimary  Tree = "primary"
	TreeFallback Tree = "fallback"
)

type Step string

const (
	StepAwaitingName     Step = "awaiting_name"
	StepAwaitingDay      Step = "awaiting_day"
	StepAwaitingTime     Step = "awaiting_time"
	StepAwaitingCombined Step = "awaiting_time_day_combined"
	StepSlotConfirmed    Step = "slot_confirmed"
	StepSalesOffered     Step = "sales_offered"
	StepFallbackEntered  Step = "fallback_entered"
)

const (
	MemberNone   = "none"
	MemberFull   = "member"
	MemberTrial  = "trial"
	AttendNone   = "unknown"
	AttendYes    = "attended"
	AttendNoShow = "no_show"
)

// Contact is one WhatsApp user moving through the funnel. Never hard-deleted.
type Contact struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Key   string `gorm:"column:contact_key;uniqueIndex;not null"` // +E.164 phone
	Phone string
	Name  string

	Source Source
	Tree   Tree
	Step   Step

	SelectedDay   string
	ChosenSlot    string
	NextSessionAt *time.Time

	LastInboundAt   *time.Time
	WindowExpiresAt *time.Time

	ThumbsUp        bool
	Reminder12hSent bool
	Reminder60mSent bool
	Reminder10mSent bool

	MemberStatus string `gorm:"default:none"`
	Attendance   string `gorm:"default:unknown"`

	// Extra carries unmodeled metadata from the inbound channel as JSON.
	Extra string
}

// IsMember reports a paid or trial membership.
func (c *Contact) IsMember() bool {
	return c.MemberStatus == MemberFull || c.MemberStatus == MemberTrial
}

type ScheduledStatus string

const (
	StatusPending    ScheduledStatus = "pending"
	StatusProcessing ScheduledStatus = "processing"
	StatusSent       ScheduledStatus = "sent"
	StatusFailed     ScheduledStatus = "failed"
	StatusCancelled  ScheduledStatus = "cancelled"
)

// ScheduledMessage is one future send obligation. Rows are never deleted.
type ScheduledMessage struct {
	ID        string `gorm:"primaryKey"` // uuid
	CreatedAt time.Time
	UpdatedAt time.Time

	ContactKey   string `gorm:"not null"`
	TemplateCode string `gorm:"not null"`
	Tree         Tree
	SlotCode     string
	ScheduledAt  time.Time

	Status    ScheduledStatus `gorm:"not null"`
	ClaimedAt *time.Time      // set while PROCESSING
	SentAt    *time.Time
	Reason    string
}

type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// MessageLog is the append-only audit of inbound and outbound messages.
type MessageLog struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time

	ContactKey   string `gorm:"index"`
	Direction    Direction
	TemplateCode string
	Content      string
}
