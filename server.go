package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AarC10/ubxlib-dev/cell"
)

// Server handles incoming HTTP requests for interacting with the
// configured cellular module instance
type Server struct {
	Logger  *slog.Logger
	Cell    *cell.Context
	Handle  int
	Metrics *Collector
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /radio", s.handleRadio)
	mux.HandleFunc("GET /identity", s.handleIdentity)
	mux.Handle("GET /metrics", s.Metrics.Handler())
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

// handleRadio refreshes the radio parameters and returns the decoded
// record as JSON
func (s *Server) handleRadio(w http.ResponseWriter, r *http.Request) {
	err := s.Cell.RefreshRadioParameters(r.Context(), s.Handle)
	s.Metrics.ObserveRefresh(refreshOutcome(err))
	if err != nil {
		s.Logger.Error("Failed to refresh radio parameters", "error", err)
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}

	params, err := s.Cell.RadioParameters(s.Handle)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type RadioResponse struct {
		cell.RadioParameters
		SnrDb *int `json:"snr_db,omitempty"`
	}
	resp := RadioResponse{RadioParameters: params}
	if snr, err := s.Cell.SnrDb(s.Handle); err == nil {
		resp.SnrDb = &snr
	}
	s.Metrics.ObserveRadio(params, valueOrZero(resp.SnrDb), resp.SnrDb != nil)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleIdentity reads the module identity strings and returns them as JSON
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	type IdentityResponse struct {
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		Firmware     string `json:"firmware"`
		IMEI         string `json:"imei"`
		IMSI         string `json:"imsi"`
		ICCID        string `json:"iccid"`
	}

	var resp IdentityResponse
	var err error
	ctx := r.Context()

	if resp.Manufacturer, err = s.Cell.Manufacturer(ctx, s.Handle); err != nil {
		s.Logger.Error("Failed to read module identity", "error", err)
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}
	if resp.Model, err = s.Cell.Model(ctx, s.Handle); err != nil {
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}
	if resp.Firmware, err = s.Cell.FirmwareVersion(ctx, s.Handle); err != nil {
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}
	if resp.IMEI, err = s.Cell.IMEI(ctx, s.Handle); err != nil {
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}
	if resp.IMSI, err = s.Cell.IMSI(ctx, s.Handle); err != nil {
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}
	if resp.ICCID, err = s.Cell.ICCID(ctx, s.Handle); err != nil {
		s.sendError(w, err.Error(), refreshStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// refreshStatus maps a cell error to an HTTP status code
func refreshStatus(err error) int {
	switch {
	case errors.Is(err, cell.ErrInvalidParameter), errors.Is(err, cell.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, cell.ErrNotRegistered):
		return http.StatusServiceUnavailable
	case errors.Is(err, cell.ErrAT):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// refreshOutcome maps a refresh result to a metrics outcome label
func refreshOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, cell.ErrNotRegistered):
		return outcomeNotRegistered
	case errors.Is(err, cell.ErrAT):
		return outcomeATError
	default:
		return outcomeError
	}
}

func valueOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
