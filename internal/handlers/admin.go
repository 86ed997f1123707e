package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/innerjoy/funnel/internal/flow"
	"github.com/innerjoy/funnel/internal/models"
	"github.com/innerjoy/funnel/internal/services"
	"github.com/innerjoy/funnel/internal/store"
)

// GET /admin/stats
func AdminStats(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Store.Stats(r.Context())
		if err != nil {
			d.Log.Error().Err(err).Msg("stats failed")
			writeError(w, http.StatusInternalServerError, "db error")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// POST /admin/dispatch/run
func AdminRunDispatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := d.Sweeper.Sweep(r.Context(), d.now())
		status := http.StatusOK
		if rep.Busy {
			status = http.StatusConflict
		}
		writeJSON(w, status, rep)
	}
}

type contactView struct {
	Contact   *models.Contact           `json:"contact"`
	Scheduled []models.ScheduledMessage `json:"scheduled"`
}

// GET /admin/contacts/{key}
func AdminContact(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := services.NormPhone(chi.URLParam(r, "key"))
		c, err := d.Store.GetContact(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contact not found")
			return
		}
		if err != nil {
			d.Log.Error().Err(err).Str("contact", key).Msg("load contact failed")
			writeError(w, http.StatusInternalServerError, "db error")
			return
		}
		rows, err := d.Store.ListScheduledFor(r.Context(), key)
		if err != nil {
			d.Log.Warn().Err(err).Str("contact", key).Msg("list scheduled failed")
		}
		writeJSON(w, http.StatusOK, contactView{Contact: c, Scheduled: rows})
	}
}

// POST /admin/contacts/{key}/membership  {"status":"member"|"trial"|"none"}
func AdminMembership(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		key := services.NormPhone(chi.URLParam(r, "key"))
		c, err := d.Engine.SetMembership(r.Context(), key, body.Status)
		respondContact(w, d, key, c, err)
	}
}

// POST /admin/contacts/{key}/attendance  {"attendance":"attended"|"no_show"|"unknown"}
func AdminAttendance(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Attendance string `json:"attendance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		key := services.NormPhone(chi.URLParam(r, "key"))
		c, err := d.Engine.SetAttendance(r.Context(), key, body.Attendance)
		respondContact(w, d, key, c, err)
	}
}

func respondContact(w http.ResponseWriter, d Deps, key string, c *models.Contact, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, c)
	case errors.Is(err, flow.ErrBadStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "contact not found")
	case c != nil:
		// stored, but the welcome message did not go out
		d.Log.Warn().Err(err).Str("contact", key).Msg("update saved, notify failed")
		writeJSON(w, http.StatusAccepted, c)
	default:
		d.Log.Error().Err(err).Str("contact", key).Msg("admin update failed")
		writeError(w, http.StatusInternalServerError, "update failed")
	}
}
