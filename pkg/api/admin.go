// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapmedia/pkg/jobs"
)

// handleJobs lists processing jobs.
// GET /v1/jobs?status=&type=&limit=&offset=
func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := jobs.JobFilter{
		Type:   jobs.JobType(q.Get("type")),
		Status: jobs.JobStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	list, err := h.jobs.List(r.Context(), filter)
	if err != nil {
		writeJSONError(w, "job lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, list, http.StatusOK)
}

// handleJobStats reports queue depth by status and type.
// GET /v1/jobs/stats
func (h *Handler) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		writeJSONError(w, "stats lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// handleJob handles /v1/jobs/{id} and /v1/jobs/{id}/requeue.
func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		writeJSONError(w, "job id required", http.StatusBadRequest)
		return
	}
	jobID := parts[0]
	subPath := ""
	if len(parts) > 1 {
		subPath = parts[1]
	}

	switch subPath {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		job, err := h.jobs.Get(r.Context(), jobID)
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeJSONError(w, "job lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, job, http.StatusOK)

	case "requeue":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		err := h.jobs.Requeue(r.Context(), jobID)
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeJSONError(w, "job not found", http.StatusNotFound)
		case errors.Is(err, jobs.ErrNotDeadLetter):
			writeJSONError(w, "job is not dead-lettered", http.StatusConflict)
		case err != nil:
			writeJSONError(w, "requeue failed", http.StatusInternalServerError)
		default:
			writeJSON(w, map[string]string{"status": "requeued"}, http.StatusOK)
		}

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}
