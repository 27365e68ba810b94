package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pagepulse/pagepulse/internal/database"
	"github.com/pagepulse/pagepulse/internal/models"
)

// maxIngestBody caps the ingestion request body.
const maxIngestBody = 100 << 10 // 100KB

const (
	timelineDefaultLimit = 100
	timelineMaxLimit     = 500
)

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug().Err(err).Msg("encode response failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

// handleIngest accepts a batch {"events": [...]}. Events failing per-event
// validation are silently filtered; only a malformed top-level shape is a
// client error.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var batch models.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil || len(batch.Events) == 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid events array")
		return
	}

	ingested, err := s.db.InsertEvents(r.Context(), batch.Events)
	if err != nil {
		s.log.Error().Err(err).Msg("ingest failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to ingest events")
		return
	}

	s.respond(w, http.StatusOK, map[string]any{"success": true, "ingested": ingested})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	overview, err := s.db.GetOverview(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("overview failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get overview")
		return
	}
	s.respond(w, http.StatusOK, overview)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	stats, err := s.db.GetSectionExposures(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("sections failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get sections")
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleScrollDepth(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	stats, err := s.db.GetScrollDepths(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("scroll depth failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get scroll depth")
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleSectionTime(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	stats, err := s.db.GetSectionTimes(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("section time failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get section time")
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleCTAClicks(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	stats, err := s.db.GetCTAClicks(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("cta clicks failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get CTA clicks")
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleAbandonments(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	stats, err := s.db.GetAbandonments(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("abandonments failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get abandonments")
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	since := database.SinceMillis(r.URL.Query().Get("range"), time.Now())
	limit := timelineDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > timelineMaxLimit {
		limit = timelineMaxLimit
	}

	entries, err := s.db.GetTimeline(r.Context(), since, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("timeline failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to get timeline")
		return
	}
	s.respond(w, http.StatusOK, entries)
}

// handlePurge deletes rows whose client timestamp is older than ?days
// (default from retention config).
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.Retention.Days
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}

	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	deleted, err := s.db.Purge(r.Context(), cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("purge failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to purge data")
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
		"message": fmt.Sprintf("Deleted events older than %d days", days),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
