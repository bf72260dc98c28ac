package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Metric names follow https://prometheus.io/docs/practices/naming/
var (
	metricNamePrefix = "d4l_go_image_studio"
)

var buildInfo = prometheus.NewGaugeFunc(
	prometheus.GaugeOpts{
		Namespace: metricNamePrefix,
		Name:      "build_info",
		Help:      "A metric with a constant '1' value labeled by version, branch, commit, build date, and goversion.",
		ConstLabels: prometheus.Labels{
			"version":   config.Version,
			"branch":    config.Branch,
			"commit":    config.Commit,
			"goversion": config.GoVersion,
		},
	},
	func() float64 { return 1 },
)

// AddBuildInfoMetric adds a static metric with the build information
func AddBuildInfoMetric() {
	register(buildInfo)
}

// register adds collectors to the default registry; registering twice is a no-op
func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				logging.LogErrorf(err, "Error registering metric")
			}
		}
	}
}
