package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tfassist/app/usecase"
	"tfassist/internal/domain/entity"
	"tfassist/internal/infrastructure/metrics"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// EventStreamer upgrades a request to a live record feed.
type EventStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type TerraformHandler struct {
	terraform    usecase.TerraformUsecase
	history      usecase.HistoryUsecase
	events       EventStreamer
	logger       *slog.Logger
	maxBodyBytes int64
}

func NewTerraformHandler(
	terraform usecase.TerraformUsecase,
	history usecase.HistoryUsecase,
	events EventStreamer,
	logger *slog.Logger,
	maxBodyBytes int64,
) *TerraformHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &TerraformHandler{
		terraform:    terraform,
		history:      history,
		events:       events,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Middleware for metrics and access logs
func (h *TerraformHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, path, rw.status, duration)
		h.logger.Info("http request",
			"method", r.Method, "path", path, "status", rw.status, "duration", duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *TerraformHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate-terraform", h.withMetrics(h.handleGenerate)).Methods(http.MethodPost)
	r.HandleFunc("/validate-terraform", h.withMetrics(h.handleValidate)).Methods(http.MethodPost)
	r.HandleFunc("/explain-terraform", h.withMetrics(h.handleExplain)).Methods(http.MethodPost)
	r.HandleFunc("/analyze-terraform", h.withMetrics(h.handleAnalyze)).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)
	api.HandleFunc("/history", h.withMetrics(h.handleListHistory)).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", h.withMetrics(h.handleGetHistory)).Methods(http.MethodGet)
	if h.events != nil {
		// not wrapped: the upgrade needs the raw ResponseWriter
		api.HandleFunc("/events", h.events.ServeWS).Methods(http.MethodGet)
	}

	// Prometheus
	r.Handle("/metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, entity.ErrorResponse{Detail: detail})
}

// POST /generate-terraform
func (h *TerraformHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req entity.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, bodyErrorStatus(err), fmt.Sprintf("bad request body: %v", err))
		return
	}
	if req.Description == nil || req.Provider == nil {
		writeError(w, http.StatusUnprocessableEntity, "description and provider are required")
		return
	}

	resp, err := h.terraform.GenerateTerraform(r.Context(), *req.Description, *req.Provider)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error generating code: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /validate-terraform
func (h *TerraformHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	code, err := h.readTerraformCode(w, r)
	if err != nil {
		writeError(w, bodyErrorStatus(err), fmt.Sprintf("bad request body: %v", err))
		return
	}

	resp, err := h.terraform.ValidateTerraform(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error validating code: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /explain-terraform
func (h *TerraformHandler) handleExplain(w http.ResponseWriter, r *http.Request) {
	code, err := h.readTerraformCode(w, r)
	if err != nil {
		writeError(w, bodyErrorStatus(err), fmt.Sprintf("bad request body: %v", err))
		return
	}

	resp, err := h.terraform.ExplainTerraform(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error explaining code: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /analyze-terraform
func (h *TerraformHandler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	code, err := h.readTerraformCode(w, r)
	if err != nil {
		writeError(w, bodyErrorStatus(err), fmt.Sprintf("bad request body: %v", err))
		return
	}

	res, err := h.terraform.AnalyzeTerraform(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error analyzing code: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readTerraformCode takes the code from the terraform_code query parameter,
// a JSON string or {"terraform_code": ...} body, or the raw body, in that order.
func (h *TerraformHandler) readTerraformCode(w http.ResponseWriter, r *http.Request) (string, error) {
	if values, ok := r.URL.Query()["terraform_code"]; ok && len(values) > 0 {
		return values[0], nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return "", err
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "application/json" {
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return s, nil
		}
		var obj struct {
			TerraformCode *string `json:"terraform_code"`
		}
		if err := json.Unmarshal(body, &obj); err == nil && obj.TerraformCode != nil {
			return *obj.TerraformCode, nil
		}
	}
	return string(body), nil
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// GET /api/v1/history
func (h *TerraformHandler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := entity.RecordFilter{Kind: entity.RecordKind(q.Get("kind"))}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", filter.Kind))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.history.ListRecords(r.Context(), filter)
	if err != nil {
		h.logger.Error("list history failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GET /api/v1/history/{id}
func (h *TerraformHandler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.history.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, entity.ErrRecordNotFound.Error())
			return
		}
		h.logger.Error("get history failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/health
func (h *TerraformHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend, model := h.terraform.GeneratorInfo()
	status := map[string]interface{}{
		"ok":      true,
		"ts":      time.Now().UTC(),
		"backend": backend,
		"model":   model,
	}
	writeJSON(w, http.StatusOK, status)
}
