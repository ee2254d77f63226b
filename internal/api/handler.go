package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/ringscope/internal/bus"
	"github.com/opensource-finance/ringscope/internal/cache"
	"github.com/opensource-finance/ringscope/internal/domain"
	"github.com/opensource-finance/ringscope/internal/ingest"
	"github.com/opensource-finance/ringscope/internal/metrics"
	"github.com/opensource-finance/ringscope/internal/pipeline"
	"github.com/opensource-finance/ringscope/internal/repository"
)

const (
	defaultMaxUpload = 32 << 20
	maxListLimit     = 200

	// CacheHeader reports whether /analyze was served from the report cache.
	CacheHeader = "X-Cache"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	analyzer  *pipeline.Analyzer
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	metrics   *metrics.Collector
	reportTTL time.Duration
	maxUpload int64
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	ttl := deps.ReportTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Handler{
		analyzer:  deps.Analyzer,
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		reportTTL: ttl,
		maxUpload: maxUpload,
		version:   deps.Version,
	}
}

// AnalyzeRequest is the JSON body of POST /analyze and POST /batches.
type AnalyzeRequest struct {
	Transactions []ingest.TransactionRecord `json:"transactions"`
	Options      *domain.AnalysisOptions    `json:"options,omitempty"`
}

// BatchResponse is returned by POST /batches.
type BatchResponse struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
	TraceID  string `json:"trace_id"`
}

// ReportListResponse is returned by GET /reports.
type ReportListResponse struct {
	Reports []*domain.ReportSummary `json:"reports"`
	Count   int                     `json:"count"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Row   int    `json:"row,omitempty"`
	Field string `json:"field,omitempty"`
}

// Analyze handles POST /analyze requests.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	txs, opts, err := h.decodeBatch(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cfg, err := h.analyzer.Resolve(opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	fingerprint, err := cache.Fingerprint(txs, cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.cache != nil {
		cached, err := h.cache.GetReport(ctx, tenantID, fingerprint)
		if err != nil {
			slog.Warn("report cache lookup failed", "tenant_id", tenantID, "error", err)
		}
		h.metrics.CacheLookup(cached != nil)
		if cached != nil {
			w.Header().Set(CacheHeader, "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	res, err := h.analyzer.Analyze(ctx, &domain.AnalysisRequest{
		TenantID:     tenantID,
		TraceID:      traceID,
		Transactions: txs,
		Options:      opts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.store(ctx, tenantID, res)
	if h.cache != nil {
		if err := h.cache.SetReport(ctx, tenantID, fingerprint, res.Report, h.reportTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", res.Report.ID, "error", err)
		}
	}

	w.Header().Set(CacheHeader, "MISS")
	writeJSON(w, http.StatusOK, res.Report)
}

// store persists a report and its graph. Failures are logged; the caller
// still receives the report.
func (h *Handler) store(ctx context.Context, tenantID string, res *pipeline.Result) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveReport(ctx, tenantID, res.Report); err != nil {
		slog.Error("failed to save report", "report_id", res.Report.ID, "error", err)
		return
	}
	if err := h.repo.SaveGraph(ctx, tenantID, res.Graph); err != nil {
		slog.Error("failed to save graph", "report_id", res.Report.ID, "error", err)
	}
}

// SubmitBatch handles POST /batches. The batch is validated, then queued
// for a worker; the report becomes available under the returned ID.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event bus not available"})
		return
	}

	txs, opts, err := h.decodeBatch(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.analyzer.Resolve(opts); err != nil {
		h.writeError(w, err)
		return
	}

	reportID := uuid.New().String()
	payload, err := json.Marshal(domain.AnalysisRequest{
		ReportID:     reportID,
		TenantID:     tenantID,
		TraceID:      traceID,
		Transactions: txs,
		Options:      opts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchSubmitted, payload); err != nil {
		slog.Error("failed to queue batch", "report_id", reportID, "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "failed to queue batch"})
		return
	}

	slog.Info("batch queued",
		"report_id", reportID,
		"tenant_id", tenantID,
		"transactions", len(txs),
	)

	w.Header().Set("Location", "/reports/"+reportID)
	writeJSON(w, http.StatusAccepted, BatchResponse{
		ReportID: reportID,
		Status:   "queued",
		TraceID:  traceID,
	})
}

// decodeBatch reads transactions and options from a JSON, multipart or CSV body.
func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) ([]domain.Transaction, *domain.AnalysisOptions, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, nil, &domain.ValidationError{Reason: "invalid Content-Type"}
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		return decodeJSONBatch(r.Body)

	case "text/csv":
		txs, err := ingest.ParseCSV(r.Body)
		return txs, nil, err

	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, nil, err
			}
			return nil, nil, &domain.ValidationError{Field: "file", Reason: "multipart part is required"}
		}
		defer file.Close()

		var opts *domain.AnalysisOptions
		if raw := r.FormValue("options"); raw != "" {
			opts = &domain.AnalysisOptions{}
			if err := json.Unmarshal([]byte(raw), opts); err != nil {
				return nil, nil, &domain.ValidationError{Field: "options", Reason: "invalid JSON"}
			}
		}
		txs, err := ingest.ParseCSV(file)
		return txs, opts, err

	default:
		return nil, nil, errUnsupportedMedia
	}
}

var errUnsupportedMedia = errors.New("unsupported content type")

// decodeJSONBatch accepts {"transactions": [...], "options": {...}} or a bare array.
func decodeJSONBatch(body io.Reader) ([]domain.Transaction, *domain.AnalysisOptions, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	data = bytes.TrimSpace(data)

	var req AnalyzeRequest
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &req.Transactions)
	} else {
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		return nil, nil, &domain.ValidationError{Reason: "invalid JSON request body"}
	}

	txs, err := ingest.FromRecords(req.Transactions)
	return txs, req.Options, err
}

// GetReport handles GET /reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	report, err := h.repo.GetReport(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetGraph handles GET /reports/{id}/graph.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	export, err := h.repo.GetGraph(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

// ListReports handles GET /reports?limit=N.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	limit := repository.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = min(n, maxListLimit)
	}

	reports, err := h.repo.ListReports(ctx, GetTenantID(ctx), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*domain.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, ReportListResponse{Reports: reports, Count: len(reports)})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string)

	check := func(name string, ping func(context.Context) error) {
		if err := ping(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
			return
		}
		components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// writeError maps pipeline, ingest and repository errors to HTTP replies.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var ce *domain.ConfigurationError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Row: ve.Row, Field: ve.Field})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ce.Error(), Field: ce.Option})
	case errors.Is(err, domain.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: fmt.Sprintf("body exceeds %d bytes", maxErr.Limit)})
	case errors.Is(err, errUnsupportedMedia):
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{Error: "expected application/json, text/csv or multipart/form-data"})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "report not found"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "analysis cancelled"})
	case errors.Is(err, bus.ErrBufferFull):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "queue full"})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
