package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	liveTensors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tensord_live_tensors",
			Help: "Number of tensor handles currently registered.",
		},
	)

	liveModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tensord_live_models",
			Help: "Number of model handles currently registered, including models awaiting deferred deletion.",
		},
	)
)

func init() {
	prometheus.MustRegister(liveTensors)
	prometheus.MustRegister(liveModels)
}
