// internal/server/server.go - HTTP surface for the detection pipeline
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"

	"poolscan/internal"
	"poolscan/internal/pipeline"
)

// Server exposes the detection pipeline over HTTP. It is a thin
// request/response mapping; all behavior lives in the pipeline service.
type Server struct {
	service *pipeline.Service
	logger  *slog.Logger
}

// New creates an HTTP server around a pipeline service
func New(service *pipeline.Service, logger *slog.Logger) *Server {
	return &Server{
		service: service,
		logger:  logger,
	}
}

// Handler returns the route table for the service
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /cv/pool-detect", s.handleDetect)
	mux.HandleFunc("DELETE /cv/cache/{parcelId}", s.handleClearCache)
	mux.HandleFunc("DELETE /cv/cache", s.handleClearAllCache)
	mux.HandleFunc("GET /cv/cache/stats", s.handleCacheStats)

	return mux
}

type detectRequest struct {
	ParcelID     string            `json:"parcelId"`
	Geometry     *geojson.Geometry `json:"geometry"`
	ForceRefresh bool              `json:"forceRefresh"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// handleDetect runs the pipeline for one parcel
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, internal.NewError(internal.ErrorCodeValidation, "malformed request body", err))
		return
	}

	result, err := s.service.Detect(r.Context(), req.ParcelID, req.Geometry, req.ForceRefresh)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleClearCache clears the cached result for one parcel
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	parcelID := r.PathValue("parcelId")
	s.service.ClearCache(parcelID)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Cache cleared for parcel " + parcelID,
	})
}

// handleClearAllCache clears every cached result and resets statistics
func (s *Server) handleClearAllCache(w http.ResponseWriter, r *http.Request) {
	s.service.ClearAllCache()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "All cache cleared",
	})
}

// handleCacheStats reports cache statistics
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.CacheStats())
}

// handleHealth reports service liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"cache_size": s.service.CacheStats().Size,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps application error codes onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := internal.ErrorCodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case internal.ErrorCodeInvalidBounds, internal.ErrorCodeValidation:
		status = http.StatusBadRequest
	case internal.ErrorCodeNotFound:
		status = http.StatusNotFound
	case internal.ErrorCodeTimeout:
		status = http.StatusGatewayTimeout
	case "":
		code = internal.ErrorCodeDetection
	}

	s.logger.Error("request failed", "code", code, "error", err)
	s.writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}
