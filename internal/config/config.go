package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // slot times must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Addr      string
	DBPath    string // empty disables persistence (no-op store)
	LogLevel  string
	LogFormat string

	Timezone string
	Location *time.Location

	// WhatsApp Cloud API
	WAToken       string
	WAPhoneID     string
	WABaseURL     string
	WAAppSecret   string
	WAVerifyToken string
	WABusinessNum string

	SendTimeout      time.Duration
	SendRetries      int
	SendRetryBackoff time.Duration

	AdminToken string

	// Funnel behaviour
	TriggerPhrase   string
	OrganicWindow   time.Duration
	PaidAdWindow    time.Duration
	SessionDuration time.Duration
	FallbackDelay   time.Duration
	SweepSpec       string
	ClaimLease      time.Duration
	SendConcurrency int64
	DedupeTTL       time.Duration
	ReinviteEnabled bool
	ReinviteSpec    string

	Links Links
}

// Links are substituted into outbound templates.
type Links struct {
	Zoom         string
	ZoomDownload string
	Registration string
	Membership   string
	Trial        string
	MemberZoom   string
	YouTube      string
	SenderName   string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using process environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can supply their own.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		Addr:      e.str("ADDR", ":8080"),
		DBPath:    e.str("DB_PATH", "funnel.db"),
		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "console"),
		Timezone:  e.str("TIMEZONE", "Asia/Bangkok"),

		WAToken:       e.str("WA_ACCESS_TOKEN", ""),
		WAPhoneID:     e.str("WA_PHONE_NUMBER_ID", ""),
		WABaseURL:     e.str("WA_API_URL", "https://graph.facebook.com/v20.0"),
		WAAppSecret:   e.str("WA_APP_SECRET", ""),
		WAVerifyToken: e.str("WA_VERIFY_TOKEN", ""),
		WABusinessNum: e.str("WA_BUSINESS_NUMBER", ""),

		SendTimeout:      e.dur("SEND_TIMEOUT", 10*time.Second),
		SendRetries:      e.int("SEND_RETRIES", 3),
		SendRetryBackoff: e.dur("SEND_RETRY_BACKOFF", 2*time.Second),

		AdminToken: e.str("ADMIN_TOKEN", ""),

		TriggerPhrase:   e.str("TRIGGER_PHRASE", "free Zoom preview link"),
		OrganicWindow:   e.dur("WINDOW_ORGANIC", 24*time.Hour),
		PaidAdWindow:    e.dur("WINDOW_PAID_AD", 72*time.Hour),
		SessionDuration: e.dur("SESSION_DURATION", 30*time.Minute),
		FallbackDelay:   e.dur("FALLBACK_DELAY", 2*time.Hour),
		SweepSpec:       e.str("SWEEP_SPEC", "@every 1m"),
		ClaimLease:      e.dur("CLAIM_LEASE", 10*time.Minute),
		SendConcurrency: int64(e.int("SEND_CONCURRENCY", 4)),
		DedupeTTL:       e.dur("DEDUPE_TTL", 10*time.Minute),
		ReinviteEnabled: e.str("REINVITE_ENABLED", "") == "1",
		ReinviteSpec:    e.str("REINVITE_SPEC", "0 18 * * FRI"),

		Links: Links{
			Zoom:         e.str("ZOOM_PREVIEW_LINK", "https://us02web.zoom.us/j/82349172983"),
			ZoomDownload: e.str("ZOOM_DOWNLOAD_LINK", "https://zoom.us/download"),
			Registration: e.str("REGISTRATION_LINK", "https://innerjoy.live/"),
			Membership:   e.str("MEMBERSHIP_LINK", "https://innerjoy.live/membership/"),
			Trial:        e.str("TRIAL_LINK", "https://innerjoy.live/fair-trial/"),
			MemberZoom:   e.str("ZOOM_MEMBER_LINK", ""),
			YouTube:      e.str("YOUTUBE_PLAYLIST_LINK", ""),
			SenderName:   e.str("SENDER_NAME", "Ineke"),
		},
	}
	if e.err != nil {
		return nil, e.err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.SendRetries < 0 {
		return nil, fmt.Errorf("config: SEND_RETRIES must be >= 0, got %d", cfg.SendRetries)
	}
	if cfg.SendConcurrency < 1 {
		cfg.SendConcurrency = 1
	}
	for _, k := range cfg.Links.Missing() {
		log.Warn().Str("var", k).Msg("link not set: messages that use it will fail to render")
	}
	return cfg, nil
}

// Missing lists the env vars of template links that are empty.
func (l Links) Missing() []string {
	var out []string
	for _, f := range []struct{ key, val string }{
		{"ZOOM_PREVIEW_LINK", l.Zoom},
		{"ZOOM_DOWNLOAD_LINK", l.ZoomDownload},
		{"MEMBERSHIP_LINK", l.Membership},
		{"TRIAL_LINK", l.Trial},
		{"ZOOM_MEMBER_LINK", l.MemberZoom},
		{"YOUTUBE_PLAYLIST_LINK", l.YouTube},
		{"SENDER_NAME", l.SenderName},
	} {
		if f.val == "" {
			out = append(out, f.key)
		}
	}
	return out
}

// InviteLink is the click-to-WhatsApp URL carrying the organic trigger phrase.
func (c *Config) InviteLink() string {
	if c.WABusinessNum == "" {
		return c.Links.Registration
	}
	num := strings.TrimPrefix(c.WABusinessNum, "+")
	return "https://wa.me/" + num + "?text=" + strings.ReplaceAll(c.TriggerPhrase, " ", "%20")
}

type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("config: %s: %w", key, err)
	}
	return n
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("config: %s: %w", key, err)
	}
	return d
}
