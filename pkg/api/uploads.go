// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapmedia/pkg/upload"
)

// handleUploads handles requests to /v1/uploads
func (h *Handler) handleUploads(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		if h.limiter != nil && !h.limiter.Allow(actor.TenantID) {
			rateLimited.Inc()
			writeJSONError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		var req upload.InitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := h.uploads.Init(r.Context(), actor, &req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res, http.StatusCreated)

	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		uploads, err := h.uploads.List(r.Context(), actor, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, uploads, http.StatusOK)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpload handles requests to /v1/uploads/{id} and subresources:
//
//	/v1/uploads/{id}
//	/v1/uploads/{id}/parts
//	/v1/uploads/{id}/refresh
//	/v1/uploads/{id}/complete
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/uploads/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		writeJSONError(w, "upload id required", http.StatusBadRequest)
		return
	}
	uploadID := parts[0]
	subPath := ""
	if len(parts) > 1 {
		subPath = parts[1]
	}

	switch subPath {
	case "":
		switch r.Method {
		case http.MethodGet:
			res, err := h.uploads.Status(r.Context(), actor, uploadID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, res, http.StatusOK)
		case http.MethodDelete:
			if err := h.uploads.Abort(r.Context(), actor, uploadID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, map[string]string{"status": "aborted"}, http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	case "parts":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req upload.RegisterPartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.UploadID = uploadID
		if err := h.uploads.RegisterPart(r.Context(), actor, &req); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "registered"}, http.StatusOK)

	case "refresh":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PartNumbers []int `json:"part_numbers"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		urls, err := h.uploads.RefreshParts(r.Context(), actor, uploadID, req.PartNumbers)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, urls, http.StatusOK)

	case "complete":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req upload.CompleteRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		req.UploadID = uploadID
		res, err := h.uploads.Complete(r.Context(), actor, &req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res, http.StatusOK)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}
