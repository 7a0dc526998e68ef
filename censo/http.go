// CLAUDE:SUMMARY chi routes for the censo API — POST/GET /api/validar-cedula, stored records and per-kind stats.
package censo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/censo/kit"
	"github.com/hazyhaar/censo/verifier"
)

// Descriptor is the body of GET /api/validar-cedula.
type Descriptor struct {
	Service     string `json:"servicio"`
	State       string `json:"estado"`
	Description string `json:"descripcion"`
	Version     string `json:"version"`
}

// DefaultDescriptor describes this API.
var DefaultDescriptor = Descriptor{
	Service:     "validacion-cedula",
	State:       "activo",
	Description: "API para validación de cédulas colombianas",
	Version:     "1.0.0",
}

type validateRequest struct {
	Identifier string `json:"cedula"`
}

// RegisterRoutes mounts the verification API on r.
//
//	POST /api/validar-cedula       {"cedula":"..."} → Result
//	GET  /api/validar-cedula       service descriptor
//	GET  /api/verificaciones/{id}  stored record
//	GET  /api/verificaciones       counts per kind over ?since=<duration>
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Post("/api/validar-cedula", s.handleValidate)
	r.Get("/api/validar-cedula", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, DefaultDescriptor)
	})
	r.Get("/api/verificaciones/{id}", s.handleRecord)
	r.Get("/api/verificaciones", s.handleStats)
}

func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, MsgBadRequest)
		return
	}
	id := strings.TrimSpace(req.Identifier)
	if err := ValidateIdentifier(id); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidFormat)
		return
	}

	ctx := kit.WithTransport(r.Context(), "http")
	rec, err := s.verify(ctx, id)
	if err != nil {
		var sie *verifier.SessionInitError
		switch {
		case errors.As(err, &sie):
			writeError(w, http.StatusInternalServerError, MsgTemporary)
		case errors.Is(err, ErrUnavailable):
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(s.acquireTimeout.Seconds()))))
			writeError(w, http.StatusServiceUnavailable, MsgTemporary)
		default:
			// Client gone or deadline hit; the lookup itself keeps running.
			s.logger.Debug("censo: request ended before verification", "error", err)
			writeError(w, http.StatusServiceUnavailable, MsgTemporary)
		}
		return
	}
	if rec.ID != "" {
		w.Header().Set("X-Verification-ID", rec.ID)
	}
	writeJSON(w, http.StatusOK, rec.Result)
}

func (s *Service) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Record(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "verificación no encontrada"})
		return
	}
	if err != nil {
		s.logger.Error("censo: get record", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "error interno"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "registro deshabilitado"})
		return
	}
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "parámetro since inválido"})
			return
		}
		window = d
	}
	counts, err := s.store.KindCounts(r.Context(), s.now().Add(-window))
	if err != nil {
		s.logger.Error("censo: kind counts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "error interno"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ventana": window.String(),
		"kinds":   counts,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("censo: write response", "error", err)
	}
}

// writeError answers like a negative result so clients always find "existe".
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"existe": false, "error": msg})
}
