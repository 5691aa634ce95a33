package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TaxCalculationsTotal counts calculation outcomes.
	TaxCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telco",
		Name:      "tax_calculations_total",
		Help:      "Count of tax calculation outcomes.",
	}, []string{"result"})
	// TaxCacheLookups counts result-cache hits and misses.
	TaxCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telco",
		Name:      "tax_cache_lookups_total",
		Help:      "Count of calculation cache lookups by outcome.",
	}, []string{"outcome"})
	// TaxCalculationDuration records end-to-end calculation latency.
	TaxCalculationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "telco",
		Name:      "tax_calculation_duration_ms",
		Help:      "Latency of uncached tax calculations in milliseconds.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})
	// TaxUsageRecordsTotal counts persisted exemption usage rows.
	TaxUsageRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telco",
		Name:      "tax_exemption_usage_records_total",
		Help:      "Count of exemption usage audit rows written.",
	})
)

// MustRegisterDomainMetrics registers the tax collectors. Safe to call more
// than once; only the first call registers.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(TaxCalculationsTotal, TaxCacheLookups, TaxCalculationDuration, TaxUsageRecordsTotal)
	})
}
