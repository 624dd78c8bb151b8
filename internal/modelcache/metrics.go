package modelcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheModelsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "invokeai",
			Subsystem: "modelcache",
			Name:      "models",
			Help:      "Number of models currently held by the cache",
		},
	)

	cacheVRAMBytesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "invokeai",
			Subsystem: "modelcache",
			Name:      "vram_bytes",
			Help:      "Bytes currently resident in device memory across all records",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invokeai",
			Subsystem: "modelcache",
			Name:      "evictions_total",
			Help:      "Total unload operations performed to relieve memory pressure",
		},
	)
)

func init() {
	prometheus.MustRegister(cacheModelsGauge, cacheVRAMBytesGauge, cacheEvictionsTotal)
}
