package tax_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/tax"
)

func sampleApplied() []tax.ExemptionApplied {
	return []tax.ExemptionApplied{
		{ExemptionID: 1, TaxName: "Universal Service Fund", TaxType: tax.TaxUSF,
			Jurisdiction: "United States", OriginalAmount: dec("33.4"),
			ExemptedAmount: dec("16.7"), FinalAmount: dec("16.7")},
		{ExemptionID: 1, TaxName: "Federal Excise Tax", TaxType: tax.TaxExcise,
			Jurisdiction: "United States", OriginalAmount: dec("3"),
			ExemptedAmount: dec("3"), FinalAmount: dec("0")},
	}
}

func TestRecorderWritesOneRowPerApplication(t *testing.T) {
	store := newStore()
	rec := &tax.Recorder{Store: store}
	err := rec.Record(context.Background(), "acme", "INV-1001", sampleApplied())
	require.NoError(t, err)
	require.Len(t, store.usages, 2)
	require.Equal(t, "INV-1001", store.usages[0].DocumentRef)
	require.True(t, store.usages[0].ExemptedAmount.Equal(dec("16.7")))
}

func TestRecorderIdempotentReplay(t *testing.T) {
	store := newStore()
	rec := &tax.Recorder{Store: store}

	require.NoError(t, rec.Record(context.Background(), "acme", "INV-1001", sampleApplied()))
	require.NoError(t, rec.Record(context.Background(), "acme", "INV-1001", sampleApplied()))
	require.Len(t, store.usages, 2, "replays must not duplicate rows")
}

func TestRecorderSkipsZeroRelief(t *testing.T) {
	store := newStore()
	rec := &tax.Recorder{Store: store}

	applied := []tax.ExemptionApplied{
		{ExemptionID: 2, TaxName: "CA PUC User Fee", ExemptedAmount: dec("0")},
	}
	require.NoError(t, rec.Record(context.Background(), "acme", "INV-1002", applied))
	require.Empty(t, store.usages)
}

func TestRecorderRequiresDocumentRef(t *testing.T) {
	rec := &tax.Recorder{Store: newStore()}
	err := rec.Record(context.Background(), "acme", "  ", sampleApplied())
	require.ErrorIs(t, err, tax.ErrMissingDocumentRef)
}

func TestRecorderRequiresScope(t *testing.T) {
	rec := &tax.Recorder{Store: newStore()}
	err := rec.Record(context.Background(), "", "INV-1001", sampleApplied())
	require.ErrorIs(t, err, tax.ErrMissingScope)
}

func TestUsageTaskRoundTrip(t *testing.T) {
	task, err := tax.NewUsageTask("acme", "INV-1001", sampleApplied())
	require.NoError(t, err)
	require.Equal(t, tax.TaskRecordUsage, task.Type())

	store := newStore()
	rec := &tax.Recorder{Store: store}
	require.NoError(t, rec.HandleUsageTask(context.Background(), task))
	require.Len(t, store.usages, 2)
}
