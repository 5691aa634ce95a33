package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/obs"
)

// TaskRecordUsage is the asynq task type carrying a deferred usage write.
const TaskRecordUsage = "tax:record_usage"

// ErrMissingDocumentRef is returned when usage recording is requested
// without a billing document reference.
var ErrMissingDocumentRef = errors.New("tax: document reference is required")

// UsageRecordPayload is the JSON body of a TaskRecordUsage task.
type UsageRecordPayload struct {
	Scope       string             `json:"scope"`
	DocumentRef string             `json:"document_ref"`
	Applied     []ExemptionApplied `json:"exemptions_applied"`
}

// Recorder writes exemption usage audit rows. Recording is always invoked
// by the caller once a result is actually billed, never by Calculate.
type Recorder struct {
	Store  UsageRepo
	Logger *zerolog.Logger
	Now    func() time.Time
}

func (r *Recorder) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Record persists one usage row per applied exemption. Rows are immutable
// and the insert is idempotent per (exemption, document, tax name), so
// replays after partial failure are safe.
func (r *Recorder) Record(ctx context.Context, scope, documentRef string, applied []ExemptionApplied) error {
	if r == nil || r.Store == nil {
		return errors.New("tax: usage recorder not configured")
	}
	if strings.TrimSpace(scope) == "" {
		return ErrMissingScope
	}
	if strings.TrimSpace(documentRef) == "" {
		return ErrMissingDocumentRef
	}
	now := r.now()
	for _, a := range applied {
		if !a.ExemptedAmount.IsPositive() {
			continue
		}
		usage := ExemptionUsage{
			ExemptionID:    a.ExemptionID,
			DocumentRef:    documentRef,
			TaxName:        a.TaxName,
			OriginalAmount: a.OriginalAmount,
			ExemptedAmount: a.ExemptedAmount,
			FinalAmount:    a.FinalAmount,
			CreatedAt:      now,
		}
		if err := r.Store.InsertUsage(ctx, scope, usage); err != nil {
			return fmt.Errorf("record exemption %d usage: %w", a.ExemptionID, err)
		}
		obs.TaxUsageRecordsTotal.Inc()
	}
	return nil
}

// NewUsageTask builds the asynq task for a deferred usage write.
func NewUsageTask(scope, documentRef string, applied []ExemptionApplied) (*asynq.Task, error) {
	payload, err := json.Marshal(UsageRecordPayload{Scope: scope, DocumentRef: documentRef, Applied: applied})
	if err != nil {
		return nil, fmt.Errorf("marshal usage payload: %w", err)
	}
	return asynq.NewTask(TaskRecordUsage, payload, asynq.MaxRetry(5)), nil
}

// HandleUsageTask is the worker-side asynq handler.
func (r *Recorder) HandleUsageTask(ctx context.Context, t *asynq.Task) error {
	var payload UsageRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal usage payload: %w", err)
	}
	return r.Record(ctx, payload.Scope, payload.DocumentRef, payload.Applied)
}
