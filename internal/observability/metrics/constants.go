// Package metrics provides Prometheus metric collectors for pipeline and
// scheduler observability.
package metrics

// Shared histogram bucket parameters.
const (
	BucketStart10ms = 0.01
	BucketFactor2   = 2.0
	BucketCount12   = 12
)
