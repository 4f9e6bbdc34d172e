// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// handleFile handles requests to /v1/files/{id} and subresources:
//
//	/v1/files/{id}
//	/v1/files/{id}/status
//	/v1/files/{id}/url
//	/v1/files/{id}/policy
//	/v1/files/{id}/restore
//	/v1/files/{id}/derivatives
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/files/")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		writeJSONError(w, "file id required", http.StatusBadRequest)
		return
	}
	fileID := parts[0]
	subPath := ""
	if len(parts) > 1 {
		subPath = parts[1]
	}

	switch subPath {
	case "":
		switch r.Method {
		case http.MethodGet:
			file, err := h.registry.Get(r.Context(), actor, fileID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, file, http.StatusOK)
		case http.MethodDelete:
			if err := h.registry.MarkDeleted(r.Context(), actor, fileID); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := h.registry.Status(r.Context(), actor, fileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res, http.StatusOK)

	case "url":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := h.registry.IssueURL(r.Context(), actor, fileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, res, http.StatusOK)

	case "policy":
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Policy types.AccessPolicy `json:"policy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.registry.ChangeAccessPolicy(r.Context(), actor, fileID, req.Policy); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"policy": string(req.Policy)}, http.StatusOK)

	case "restore":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := h.registry.Restore(r.Context(), actor, fileID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "restored"}, http.StatusOK)

	case "derivatives":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		derivatives, err := h.registry.Derivatives(r.Context(), actor, fileID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, derivatives, http.StatusOK)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleDownload resolves a signed download token.
// GET /v1/download?token=...
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, "token required", http.StatusBadRequest)
		return
	}
	file, err := h.registry.VerifyToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, file, http.StatusOK)
}

// handleQuota reports the caller's usage.
// GET /v1/quota
func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	usage, err := h.quota.Usage(r.Context(), actor.TenantID)
	if err != nil {
		writeJSONError(w, "quota lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, usage, http.StatusOK)
}

// handleQuotaLimits sets tenant limits.
// PUT /v1/quota/limits
func (h *Handler) handleQuotaLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		MaxBytes   int64 `json:"max_bytes"`
		MaxObjects int64 `json:"max_objects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.quota.SetLimits(r.Context(), actor.TenantID, req.MaxBytes, req.MaxObjects); err != nil {
		writeJSONError(w, "set limits failed", http.StatusInternalServerError)
		return
	}
	usage, err := h.quota.Usage(r.Context(), actor.TenantID)
	if err != nil {
		writeJSONError(w, "quota lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, usage, http.StatusOK)
}

// handleAudit lists the tenant's audit trail, newest first.
// GET /v1/audit?limit=N
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.audit == nil {
		writeJSONError(w, "audit not enabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	entries, err := h.audit.List(r.Context(), actor.TenantID, limit)
	if err != nil {
		writeJSONError(w, "audit lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries, http.StatusOK)
}
