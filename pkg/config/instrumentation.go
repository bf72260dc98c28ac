package config

import (
	"github.com/d4l-data4life/go-svc/pkg/prom"
)

var (
	// LatencyBuckets define buckets for histogram of HTTP request/reply latency metric - in seconds.
	// Generation calls run up to the 25s backend timeout, so the upper buckets are wide.
	LatencyBuckets = []float64{.001, .01, .1, .25, .5, 1, 2.5, 5, 10, 15, 25, 30}
	// SizeBuckets define buckets for histogram of HTTP request/reply size metric - in bytes.
	// Requests and replies carry base64 images.
	SizeBuckets = []float64{64, 512, 1024, 20480, 102400, 512000, 1000000, 2500000, 5000000, 10000000, 20000000}
	// DefaultInstrumentOptions hold options (API-path-specific) for HTTP instrumenter - record request size and response size
	DefaultInstrumentOptions = []prom.Option{prom.WithReqSize, prom.WithRespSize}
	// DefaultInstrumentInitOptions hold initialization options (API-handler-specific) for HTTP instrumenter - definitions of histogram buckets
	DefaultInstrumentInitOptions = []prom.InitOption{
		prom.WithLatencyBuckets(LatencyBuckets),
		prom.WithSizeBuckets(SizeBuckets),
	}
)
