// SPDX-License-Identifier: Apache-2.0

// Package api exposes the HTTP+JSON binding for mission submission and
// status queries.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

// Service is the mission surface the API exposes.
type Service interface {
	SubmitAsync(ctx context.Context, employeeID, projectID string) (core.Mission, error)
	Status(ctx context.Context, missionID string) (core.Mission, error)
}

// ProtocolReader optionally exposes protocol lookups over HTTP.
type ProtocolReader interface {
	Get(ctx context.Context, projectID string) (core.Protocol, error)
}

// Server routes HTTP+JSON requests to the coordinator.
type Server struct {
	service   Service
	protocols ProtocolReader
	log       *slog.Logger
}

// New creates an HTTP server wrapper. protocols may be nil, in which
// case protocol lookups answer 404.
func New(service Service, protocols ProtocolReader) *Server {
	return &Server{service: service, protocols: protocols, log: slog.Default()}
}

// SubmitRequest is the POST /missions payload.
type SubmitRequest struct {
	EmployeeID string `json:"employee_id"`
	ProjectID  string `json:"project_id"`
}

// ServeHTTP routes requests under /missions and /protocols.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := normalizePath(r.URL.Path)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}
	switch segments[0] {
	case "missions":
		s.handleMissions(w, r, segments)
	case "protocols":
		s.handleProtocols(w, r, segments)
	case "healthz":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 1 && r.Method == http.MethodPost:
		s.handleSubmit(w, r)
	case len(segments) == 2 && r.Method == http.MethodGet:
		s.handleStatus(w, r, segments[1])
	default:
		http.NotFound(w, r)
	}
}

// handleSubmit accepts the mission and returns 202 with the created
// snapshot; processing continues after the response.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.New(errors.CodeInvalidInput, "malformed request body", err))
		return
	}
	m, err := s.service.SubmitAsync(r.Context(), req.EmployeeID, req.ProjectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, missionID string) {
	m, err := s.service.Status(r.Context(), missionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request, segments []string) {
	if len(segments) != 2 || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if s.protocols == nil {
		s.writeError(w, r, errors.New(errors.CodeNotFound, "protocol store not exposed", nil))
		return
	}
	p, err := s.protocols.Get(r.Context(), segments[1])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oe := errors.AsOnrampError(err)
	status := oe.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		s.log.ErrorContext(r.Context(), "api.request.error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]string{
		"code":    string(oe.Code),
		"message": oe.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func normalizePath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
