// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label values for record outcomes.
const (
	// OutcomeCreated counts records written to the target store.
	OutcomeCreated = "created"
	// OutcomeAlreadyMapped counts records found in the mapping store.
	OutcomeAlreadyMapped = "already_mapped"
	// OutcomeSkipped counts records dropped by their transform.
	OutcomeSkipped = "skipped"
	// OutcomeFailed counts records the target store rejected.
	OutcomeFailed = "failed"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// Time constants.
const (
	// ShutdownTimeout is the timeout for graceful shutdown operations.
	ShutdownTimeout = 5 * time.Second
)
