package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversionsCreated counts conversions created by source chain and origin
	ConversionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_conversions_created_total",
			Help: "Total number of conversions created",
		},
		[]string{"source_chain", "created_by"},
	)

	// ConversionsReused counts idempotent replays that returned an existing conversion
	ConversionsReused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_conversions_reused_total",
			Help: "Total number of conversion requests answered with an existing conversion",
		},
		[]string{"source_chain"},
	)

	// EvidenceValidations counts transaction evidence checks by chain and outcome
	EvidenceValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_evidence_validations_total",
			Help: "Total number of transaction evidence validations",
		},
		[]string{"chain", "outcome"},
	)

	// ClaimSignaturesIssued counts authority claim signatures issued
	ClaimSignaturesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "converter_claim_signatures_issued_total",
			Help: "Total number of claim authorization signatures issued",
		},
	)

	// ConversionsExpired counts conversions swept to EXPIRED
	ConversionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "converter_conversions_expired_total",
			Help: "Total number of conversions expired by the sweeper",
		},
	)

	// SweepDuration tracks expiry sweep execution time
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "converter_sweep_duration_seconds",
			Help:    "Expiry sweep execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TransactionsRecorded counts on-chain transactions attached to conversions
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_transactions_recorded_total",
			Help: "Total number of on-chain transactions attached to conversions",
		},
		[]string{"operation"},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
