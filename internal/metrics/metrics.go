package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_lookups_total",
		Help: "Track lookups by outcome",
	}, []string{"outcome"})
	LookupDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imeisim_lookup_duration_ms",
		Help:    "Lookup duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	SynthDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imeisim_synth_duration_ms",
		Help:    "Track synthesis duration in milliseconds, snap included",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 3000},
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_cache_hits_total",
		Help: "Track cache hits by backend",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_cache_misses_total",
		Help: "Track cache misses by backend",
	}, []string{"backend"})
	CacheErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_cache_errors_total",
		Help: "Track cache backend errors",
	}, []string{"backend", "op"})
	SnapTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_snap_total",
		Help: "Road snap attempts by status",
	}, []string{"status"})
	OSRMRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imeisim_osrm_requests_total",
		Help: "Total OSRM nearest requests",
	})
	OSRMFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imeisim_osrm_fail_total",
		Help: "Total OSRM nearest failures",
	})
	OSRMDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imeisim_osrm_duration_ms",
		Help:    "OSRM nearest call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	QuotaDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_quota_decisions_total",
		Help: "Quota decisions by result and deciding store",
	}, []string{"result", "store"})
	StoreErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_store_errors_total",
		Help: "Quota store errors by store and op",
	}, []string{"store", "op"})
	SweepDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imeisim_sweep_deleted_total",
		Help: "Rows reclaimed by the day-partition sweep",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(LookupDurationMs)
	prometheus.MustRegister(SynthDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(SnapTotal)
	prometheus.MustRegister(OSRMRequestsTotal)
	prometheus.MustRegister(OSRMFailTotal)
	prometheus.MustRegister(OSRMDurationMs)
	prometheus.MustRegister(QuotaDecisionsTotal)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(SweepDeletedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：在主入口挂载到 {API_BASE}/metrics。
func Handler() http.Handler { return promhttp.Handler() }
