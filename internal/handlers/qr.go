package handlers

import (
	"net/http"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"
)

// InviteQR renders the click-to-WhatsApp invite link as a PNG. Scanning it
// opens a chat prefilled with the organic trigger phrase.
// GET /invite/qr.png?size=256
func InviteQR(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.InviteLink == "" {
			http.NotFound(w, r)
			return
		}
		size := 256
		if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s >= 128 && s <= 1024 {
			size = s
		}
		png, err := qrcode.Encode(d.InviteLink, qrcode.Medium, size)
		if err != nil {
			d.Log.Error().Err(err).Msg("qr encode failed")
			http.Error(w, "failed to generate qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
