package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 同步相关指标
type Metrics struct {
	SyncRuns        *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	StationsCached  prometheus.Gauge
	RecordsSkipped  prometheus.Counter
	StatusMatched   prometheus.Counter
	StatusUnmatched prometheus.Counter
	StatusChanges   *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册指标；测试中传入独立的 Registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationgazer_sync_runs_total",
			Help: "Number of sync runs by kind and result",
		}, []string{"kind", "result"}),

		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stationgazer_sync_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		StationsCached: f.NewGauge(prometheus.GaugeOpts{
			Name: "stationgazer_stations_cached",
			Help: "Stations written by the last station sync",
		}),

		RecordsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "stationgazer_records_skipped_total",
			Help: "Station records skipped in lenient decoding",
		}),

		StatusMatched: f.NewCounter(prometheus.CounterOpts{
			Name: "stationgazer_status_matched_total",
			Help: "Status records merged into a cached station",
		}),

		StatusUnmatched: f.NewCounter(prometheus.CounterOpts{
			Name: "stationgazer_status_unmatched_total",
			Help: "Status records with no cached station",
		}),

		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationgazer_status_changes_total",
			Help: "EVSE status transitions by target status",
		}, []string{"to"}),
	}
}
