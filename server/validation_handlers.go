package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/plateful/plateful/pkg/validate"
)

type approveRequest struct {
	Edits map[string]any `json:"edits"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// pendingHandler lists recipes waiting for review
func (s *Server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records := s.pipeline.ListPending(limit)
	renderJSON(w, r, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// validationRecordHandler returns one pending record by id
func (s *Server) validationRecordHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.pipeline.Get(r.PathValue("id"))
	if err != nil {
		s.renderValidationError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, record)
}

// approveHandler approves a pending recipe, optionally applying user edits
func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}
	}

	record, err := s.pipeline.Approve(r.PathValue("id"), req.Edits)
	if err != nil {
		s.renderValidationError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, record)
}

// rejectHandler rejects a pending recipe with a reason
func (s *Server) rejectHandler(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "no reason given"
	}

	record, err := s.pipeline.Reject(r.PathValue("id"), req.Reason)
	if err != nil {
		s.renderValidationError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, record)
}

// validationSummaryHandler reports queue counts and common issues
func (s *Server) validationSummaryHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.pipeline.Summary())
}

func (s *Server) renderValidationError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, validate.ErrNotFound) {
		code = http.StatusNotFound
	}
	renderError(w, r, err, code)
}
