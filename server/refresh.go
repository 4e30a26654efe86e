package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"signvault/refresh"
	"signvault/timestamps"
)

type refreshRequest struct {
	UUID    string `json:"uuid"`
	UUIDDoc string `json:"uuidDoc"`
}

type batchRequest struct {
	UUIDs []string `json:"uuids"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write JSON response", "error", err)
	}
}

// formatResults turns resolved times into the display strings the UI expects.
func formatResults(results map[string]*time.Time) map[string]any {
	out := make(map[string]any, len(results))
	for id, t := range results {
		out[id] = timestampValue(t)
	}
	return out
}

// decodeIDs reads {"uuids": [...]} and drops blank ids.
func decodeIDs(r *http.Request) []string {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil
	}
	var ids []string
	for _, id := range req.UUIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) handleRefreshSignature(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// A malformed body is treated like a missing id.
	_ = json.NewDecoder(r.Body).Decode(&req)
	id := strings.TrimSpace(req.UUID)
	if id == "" {
		id = strings.TrimSpace(req.UUIDDoc)
	}
	if id == "" {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "missing uuid"})
		return
	}

	var signed *time.Time
	if at, ok := s.refresher.RefreshOne(r.Context(), id); ok {
		signed = &at
	}
	s.logger.Info("Signature refresh requested", "uuid", id, "found", signed != nil)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"uuid": id, "ultimaAssinatura": timestampValue(signed)})
}

func (s *Server) handleRefreshBatch(w http.ResponseWriter, r *http.Request) {
	ids := decodeIDs(r)
	if len(ids) == 0 {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "missing uuids"})
		return
	}

	results := s.refresher.RefreshBatch(r.Context(), ids)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "result": formatResults(results)})
}

func (s *Server) handleRefreshFromDownloads(w http.ResponseWriter, r *http.Request) {
	results, err := s.refresher.RefreshFromLedger(r.Context())
	if errors.Is(err, refresh.ErrNoDownloads) {
		writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": false, "error": "no downloads found", "result": map[string]any{}})
		return
	}
	if err != nil {
		s.logger.Error("Refresh from downloads failed", "error", err)
		writeJSON(w, s.logger, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error", "result": map[string]any{}})
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "result": formatResults(results)})
}

func (s *Server) handleRegisterDates(w http.ResponseWriter, r *http.Request) {
	results, err := s.refresher.RegisterDates(r.Context())
	if err != nil {
		// Resolved times are still returned so the page can update.
		s.logger.Error("Register dates failed to persist", "error", err)
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"ok": true, "result": formatResults(results)})
}

func (s *Server) handleRefreshQueue(w http.ResponseWriter, r *http.Request) {
	ids := decodeIDs(r)
	if len(ids) == 0 {
		writeJSON(w, s.logger, http.StatusBadRequest, map[string]string{"error": "missing uuids"})
		return
	}
	n := s.signatures.EnqueueRefresh(r.Context(), ids)
	writeJSON(w, s.logger, http.StatusOK, map[string]int{"enqueued": n})
}

// handleWebhook accepts any payload and always answers 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("Webhook body unreadable", "error", err)
		writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": false})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		s.logger.Info("Webhook ignored, body is not a JSON object", "bytes", len(body))
		writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": false})
		return
	}

	id, found := timestamps.FindDocumentID(payload)
	at, dated := timestamps.Latest(payload)
	if !found || !dated {
		s.logger.Info("Webhook ignored, no document id or timestamp", "has_id", found, "has_timestamp", dated)
		writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": false})
		return
	}

	s.signatures.Set(r.Context(), id, at)
	s.logger.Info("Webhook updated signature", "uuid", id, "signed_at", at.Format(time.RFC3339))
	writeJSON(w, s.logger, http.StatusOK, map[string]bool{"ok": true})
}
