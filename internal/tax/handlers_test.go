package tax_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/tax"
	"github.com/noah-isme/backend-telco/internal/tenant"
)

type calculateResponse struct {
	Data tax.CalculationResult `json:"data"`
}

type summaryResponse struct {
	Data tax.Summary `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newHandler(store *fakeStore) *tax.Handler {
	return &tax.Handler{
		Engine:   newEngine(store),
		Recorder: &tax.Recorder{Store: store},
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func scopedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(tenant.With(req.Context(), "acme"))
}

func TestCalculateHandler(t *testing.T) {
	h := newHandler(newStore())

	body := `{"amount": "100", "service_type": "local"}`
	rec := httptest.NewRecorder()
	h.Calculate(rec, scopedRequest(http.MethodPost, "/api/v1/tax/calculate", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp calculateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Data.FinalAmount.Equal(dec("136.4")), "final = %s", resp.Data.FinalAmount)
	require.Len(t, resp.Data.FederalTaxes, 2)
}

func TestCalculateHandlerMissingScope(t *testing.T) {
	h := newHandler(newStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate",
		strings.NewReader(`{"amount": "100", "service_type": "local"}`))
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "MISSING_SCOPE", resp.Error.Code)
}

func TestCalculateHandlerRejectsBadServiceType(t *testing.T) {
	h := newHandler(newStore())

	rec := httptest.NewRecorder()
	h.Calculate(rec, scopedRequest(http.MethodPost, "/api/v1/tax/calculate",
		`{"amount": "100", "service_type": "satellite"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "VALIDATION", resp.Error.Code)
}

func TestCalculateHandlerRejectsZeroLineCount(t *testing.T) {
	h := newHandler(newStore())

	// An omitted line_count defaults to one line; an explicit zero is invalid.
	rec := httptest.NewRecorder()
	h.Calculate(rec, scopedRequest(http.MethodPost, "/api/v1/tax/calculate",
		`{"amount": "100", "service_type": "local", "line_count": 0}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "VALIDATION", resp.Error.Code)
}

func TestCalculateHandlerBadJSON(t *testing.T) {
	h := newHandler(newStore())

	rec := httptest.NewRecorder()
	h.Calculate(rec, scopedRequest(http.MethodPost, "/api/v1/tax/calculate", "{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryHandler(t *testing.T) {
	h := newHandler(newStore())

	results := []tax.CalculationResult{
		{BaseAmount: dec("100"), TotalTaxAmount: dec("36.4"), FinalAmount: dec("136.4"),
			CalculationDate: time.Now().UTC(),
			Breakdown: []tax.TaxLine{
				{Name: "Universal Service Fund", TaxAmount: dec("33.4"), Level: tax.LevelFederal},
				{Name: "Federal Excise Tax", TaxAmount: dec("3"), Level: tax.LevelFederal},
			}},
	}
	body, err := json.Marshal(map[string]any{"results": results})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Summary(rec, scopedRequest(http.MethodPost, "/api/v1/tax/summary", string(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Count)
	require.True(t, resp.Data.TotalTax.Equal(dec("36.4")))
	require.True(t, resp.Data.TaxByLevel[tax.LevelFederal].Equal(dec("36.4")))
}

func TestSummaryHandlerEmptyBatch(t *testing.T) {
	h := newHandler(newStore())

	rec := httptest.NewRecorder()
	h.Summary(rec, scopedRequest(http.MethodPost, "/api/v1/tax/summary", `{"results": []}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordUsageHandlerSync(t *testing.T) {
	store := newStore()
	h := newHandler(store)

	body, err := json.Marshal(map[string]any{
		"document_ref":       "INV-1001",
		"exemptions_applied": sampleApplied(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.RecordUsage(rec, scopedRequest(http.MethodPost, "/api/v1/tax/usage", string(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "recorded")
	require.Len(t, store.usages, 2)
}

func TestRecordUsageHandlerRequiresDocumentRef(t *testing.T) {
	h := newHandler(newStore())

	rec := httptest.NewRecorder()
	h.RecordUsage(rec, scopedRequest(http.MethodPost, "/api/v1/tax/usage",
		`{"document_ref": "", "exemptions_applied": []}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCacheHandler(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	cache := tax.NewCache(client, time.Minute)
	require.NoError(t, cache.SetJSON(ctx, "tax:calc:acme:1", "a"))
	require.NoError(t, cache.SetJSON(ctx, "tax:juris:acme:2", "b"))

	h := &tax.Handler{Cache: cache}
	rec := httptest.NewRecorder()
	h.ClearCache(rec, scopedRequest(http.MethodDelete, "/api/v1/tax/cache?pattern=calc", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"removed":1`)
	require.True(t, mr.Exists("tax:juris:acme:2"))
}

func TestClearCacheHandlerNoCache(t *testing.T) {
	h := &tax.Handler{}
	rec := httptest.NewRecorder()
	h.ClearCache(rec, scopedRequest(http.MethodDelete, "/api/v1/tax/cache", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"removed":0`)
}
