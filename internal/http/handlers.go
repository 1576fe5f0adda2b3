package http

import (
	"encoding/json"
	"net/http"

	"ledgerreports/internal/core"
	"ledgerreports/internal/log"
)

type generateResponse struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

type statusResponse struct {
	RequestID string `json:"requestId"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := s.reports.Generate(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to create report requests",
			log.FieldOperation, log.OpCreate,
			log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Report generation requested", log.FieldRequestID, id)
	writeJSON(w, http.StatusAccepted, generateResponse{
		RequestID: id,
		Message:   "Report generation started",
	})
}

func (s *Server) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestId")

	statuses, err := s.reports.StatusAll(ctx, requestID)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to read report status",
			log.FieldRequestID, requestID,
			log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handleStatus answers with the status text; an unknown kind reads as
// "not found" like any other missing request.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.PathValue("requestId")
	raw := r.PathValue("kind")

	resp := statusResponse{RequestID: requestID, Kind: raw, Status: core.NotFoundText}

	kind, err := core.ParseKind(raw)
	if err == nil {
		resp.Kind = string(kind)
		status, err := s.reports.Status(ctx, requestID, kind)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to read report status",
				log.FieldRequestID, requestID,
				log.FieldKind, kind,
				log.FieldError, err)
			writeError(w, http.StatusServiceUnavailable, "report store unavailable")
			return
		}
		resp.Status = status
	}

	writeJSON(w, http.StatusOK, resp)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
