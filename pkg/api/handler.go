// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the upload pipeline over HTTP. Tenant and actor
// identity is resolved upstream (gateway or auth proxy) and passed in
// headers; this layer trusts them.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/jobs"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/registry"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
	"github.com/LeeDigitalWorks/zapmedia/pkg/upload"
)

// Identity headers resolved by upstream middleware.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorType = "X-Actor-Type"
)

// Config holds the handler's dependencies.
type Config struct {
	Uploads  upload.Service
	Registry registry.Service
	Quota    *quota.Ledger
	Audit    *audit.Recorder
	// Jobs enables the admin job endpoints when set.
	Jobs jobs.Queue

	// InitRate limits upload initiations per tenant (requests/second).
	// Zero disables limiting.
	InitRate  float64
	InitBurst int
}

// Handler serves the pipeline's HTTP API.
type Handler struct {
	uploads  upload.Service
	registry registry.Service
	quota    *quota.Ledger
	audit    *audit.Recorder
	jobs     jobs.Queue
	limiter  *tenantLimiter
}

// NewHandler creates a new API handler
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Uploads == nil {
		return nil, errors.New("Uploads is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	if cfg.Quota == nil {
		return nil, errors.New("Quota is required")
	}

	var limiter *tenantLimiter
	if cfg.InitRate > 0 {
		burst := cfg.InitBurst
		if burst == 0 {
			burst = int(cfg.InitRate * 2)
		}
		limiter = newTenantLimiter(cfg.InitRate, burst)
	}

	return &Handler{
		uploads:  cfg.Uploads,
		registry: cfg.Registry,
		quota:    cfg.Quota,
		audit:    cfg.Audit,
		jobs:     cfg.Jobs,
		limiter:  limiter,
	}, nil
}

// RegisterRoutes registers all API routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/uploads", h.handleUploads)
	mux.HandleFunc("/v1/uploads/", h.handleUpload)
	mux.HandleFunc("/v1/files/", h.handleFile)
	mux.HandleFunc("/v1/download", h.handleDownload)
	mux.HandleFunc("/v1/quota", h.handleQuota)
	mux.HandleFunc("/v1/quota/limits", h.handleQuotaLimits)
	mux.HandleFunc("/v1/audit", h.handleAudit)
	if h.jobs != nil {
		mux.HandleFunc("/v1/jobs", h.handleJobs)
		mux.HandleFunc("/v1/jobs/stats", h.handleJobStats)
		mux.HandleFunc("/v1/jobs/", h.handleJob)
	}
}

// actorFrom resolves the caller identity from trusted headers.
func actorFrom(r *http.Request) (types.Actor, bool) {
	tenantID := r.Header.Get(HeaderTenantID)
	if tenantID == "" {
		return types.Actor{}, false
	}
	actorType := types.ActorType(r.Header.Get(HeaderActorType))
	if actorType == "" {
		actorType = types.ActorTypeUser
	}
	return types.Actor{
		TenantID:  tenantID,
		ActorID:   r.Header.Get(HeaderActorID),
		ActorType: actorType,
		SourceIP:  remoteIP(r),
		UserAgent: r.UserAgent(),
	}, true
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// requireActor writes a 401 when identity headers are missing.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSONError(w, "missing "+HeaderTenantID+" header", http.StatusUnauthorized)
	}
	return actor, ok
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}

// writeServiceError maps typed service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var upErr *upload.Error
	if errors.As(err, &upErr) {
		writeJSON(w, map[string]string{
			"error": upErr.Message,
			"code":  upErr.Code.String(),
		}, uploadStatus(upErr.Code))
		return
	}
	var regErr *registry.Error
	if errors.As(err, &regErr) {
		writeJSON(w, map[string]string{
			"error": regErr.Message,
			"code":  regErr.Code.String(),
		}, registryStatus(regErr.Code))
		return
	}
	writeJSONError(w, "internal error", http.StatusInternalServerError)
}

func uploadStatus(code upload.ErrorCode) int {
	switch code {
	case upload.ErrCodeNotFound:
		return http.StatusNotFound
	case upload.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case upload.ErrCodeInvalidState:
		return http.StatusConflict
	case upload.ErrCodeMissingPart, upload.ErrCodeETagMismatch, upload.ErrCodeSizeMismatch:
		return http.StatusUnprocessableEntity
	case upload.ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func registryStatus(code registry.ErrorCode) int {
	switch code {
	case registry.ErrCodeNotFound:
		return http.StatusNotFound
	case registry.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case registry.ErrCodeInvalidState:
		return http.StatusConflict
	case registry.ErrCodeTokenInvalid:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
