package tax

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/tenant"
)

// Handler exposes the tax engine over HTTP.
type Handler struct {
	Engine   *Engine
	Recorder *Recorder
	Cache    *Cache
	Tasks    *asynq.Client
	Validate *validator.Validate
}

type calculateRequest struct {
	Amount          decimal.Decimal  `json:"amount"`
	ServiceType     string           `json:"service_type" validate:"required,oneof=local long_distance international voip_fixed voip_nomadic data equipment"`
	ServiceAddress  *Address         `json:"service_address"`
	ClientID        *int64           `json:"client_id"`
	CalculationDate *time.Time       `json:"calculation_date"`
	LineCount       *int             `json:"line_count" validate:"omitempty,min=1"`
	Minutes         *decimal.Decimal `json:"minutes"`
}

// Calculate handles POST /api/v1/tax/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax engine not configured", nil)
		return
	}
	scope, ok := tenant.From(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "MISSING_SCOPE", "company scope header is required", nil)
		return
	}

	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", err.Error())
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid calculation request", err.Error())
			return
		}
	}

	in := CalculationInput{
		Scope:       scope,
		Amount:      req.Amount,
		ServiceType: ServiceType(req.ServiceType),
		ClientID:    req.ClientID,
	}
	if req.LineCount != nil {
		in.LineCount = *req.LineCount
	}
	if req.ServiceAddress != nil {
		in.Address = *req.ServiceAddress
	}
	if req.CalculationDate != nil {
		in.Date = *req.CalculationDate
	}
	if req.Minutes != nil {
		in.Minutes = *req.Minutes
	}

	result, err := h.Engine.Calculate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type summaryRequest struct {
	Results []CalculationResult `json:"results" validate:"required,min=1"`
}

// Summary handles POST /api/v1/tax/summary, aggregating a batch of prior
// results for reporting.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", err.Error())
		return
	}
	if len(req.Results) == 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "results must not be empty", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Summarize(req.Results)})
}

type recordUsageRequest struct {
	DocumentRef string             `json:"document_ref" validate:"required"`
	Applied     []ExemptionApplied `json:"exemptions_applied" validate:"required,min=1"`
}

// RecordUsage handles POST /api/v1/tax/usage. When a task client is wired
// the write is deferred to the worker; otherwise it happens inline.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.From(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "MISSING_SCOPE", "company scope header is required", nil)
		return
	}
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.DocumentRef) == "" || len(req.Applied) == 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "document_ref and exemptions_applied are required", nil)
		return
	}

	if h.Tasks != nil {
		task, err := NewUsageTask(scope, req.DocumentRef, req.Applied)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if _, err := h.Tasks.EnqueueContext(r.Context(), task); err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"status": "queued"}})
		return
	}

	if h.Recorder == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "usage recorder not configured", nil)
		return
	}
	if err := h.Recorder.Record(r.Context(), scope, req.DocumentRef, req.Applied); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"status": "recorded"}})
}

// ClearCache handles DELETE /api/v1/tax/cache. Pattern clearing is best
// effort; an empty pattern flushes the engine's whole key namespace.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]int64{"removed": 0}})
		return
	}
	removed, err := h.Cache.Clear(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]int64{"removed": removed}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrMissingScope):
		common.JSONError(w, http.StatusBadRequest, "MISSING_SCOPE", err.Error(), nil)
	case errors.Is(err, ErrMissingDocumentRef):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tax calculation failed", nil)
	}
}
