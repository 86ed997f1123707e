package services

import (
	"errors"
	"testing"
)

func TestNormPhone(t *testing.T) {
	cases := map[string]string{
		"+66 81 234 5678":   "+66812345678",
		"0066-81-234-5678":  "+66812345678",
		"66812345678":       "+66812345678",
		"(+31) 6.1234.5678": "+31612345678",
		"  +49 151 2345 ":   "+491512345",
		"":                  "",
		"maria":             "",
		"+66#812":           "",
		"66+812345":         "",
	}
	for in, want := range cases {
		if got := NormPhone(in); got != want {
			t.Errorf("NormPhone(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestContactKey(t *testing.T) {
	k, err := ContactKey("", "66812345678")
	if err != nil || k != "+66812345678" {
		t.Errorf("want +66812345678, got %q (%v)", k, err)
	}
	k, _ = ContactKey("31612345678", "+66812345678")
	if k != "+31612345678" {
		t.Errorf("first valid id should win, got %q", k)
	}
	if _, err := ContactKey("abc", "", "+12"); !errors.Is(err, ErrBadIdentity) {
		t.Errorf("want ErrBadIdentity, got %v", err)
	}
}
