package config

import (
	"strings"
	"testing"
	"time"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.OrganicWindow != 24*time.Hour {
		t.Errorf("organic window: want 24h, got %s", cfg.OrganicWindow)
	}
	if cfg.PaidAdWindow != 72*time.Hour {
		t.Errorf("paid window: want 72h, got %s", cfg.PaidAdWindow)
	}
	if cfg.FallbackDelay != 2*time.Hour {
		t.Errorf("fallback delay: want 2h, got %s", cfg.FallbackDelay)
	}
	if cfg.SweepSpec != "@every 1m" {
		t.Errorf("sweep spec: want @every 1m, got %q", cfg.SweepSpec)
	}
	if cfg.Location == nil || cfg.Location.String() != "Asia/Bangkok" {
		t.Errorf("location: want Asia/Bangkok, got %v", cfg.Location)
	}
	if cfg.ReinviteEnabled {
		t.Error("reinvite should be off unless REINVITE_ENABLED=1")
	}
}

func TestLinksMissing(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	got := strings.Join(cfg.Links.Missing(), ",")
	if got != "ZOOM_MEMBER_LINK,YOUTUBE_PLAYLIST_LINK" {
		t.Errorf("defaults: want member zoom and youtube missing, got %q", got)
	}

	cfg, err = FromEnv(lookup(map[string]string{
		"ZOOM_MEMBER_LINK":      "https://zoom.example/j/members",
		"YOUTUBE_PLAYLIST_LINK": "https://youtube.example/innerjoy",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if m := cfg.Links.Missing(); len(m) != 0 {
		t.Errorf("want nothing missing, got %v", m)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"WINDOW_ORGANIC":   "12h",
		"SEND_RETRIES":     "5",
		"TIMEZONE":         "UTC",
		"REINVITE_ENABLED": "1",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.OrganicWindow != 12*time.Hour {
		t.Errorf("want 12h, got %s", cfg.OrganicWindow)
	}
	if cfg.SendRetries != 5 {
		t.Errorf("want 5 retries, got %d", cfg.SendRetries)
	}
	if !cfg.ReinviteEnabled {
		t.Error("want reinvite enabled")
	}
}

func TestFromEnv_BadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"duration": {"WINDOW_PAID_AD": "three days"},
		"int":      {"SEND_RETRIES": "many"},
		"timezone": {"TIMEZONE": "Mars/Olympus"},
		"negative": {"SEND_RETRIES": "-1"},
	}
	for name, m := range cases {
		if _, err := FromEnv(lookup(m)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestInviteLink(t *testing.T) {
	cfg, _ := FromEnv(lookup(map[string]string{"WA_BUSINESS_NUMBER": "+66812345678"}))
	want := "https://wa.me/66812345678?text=free%20Zoom%20preview%20link"
	if got := cfg.InviteLink(); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}
