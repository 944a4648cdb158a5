// Package metrics 权限网关的 Prometheus 指标
//
// 指标分为两类：
//   - 授权决策：按结果和原因计数
//   - 权限索引：重建次数、耗时、当前条目数
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "permgate"

var (
	// DecisionsTotal 授权决策计数
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	// IndexRebuildsTotal 权限索引重建计数
	IndexRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_rebuilds_total",
			Help:      "Total number of permission index rebuilds by result",
		},
		[]string{"result"},
	)

	// IndexEntries 当前已发布索引的条目数
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_entries",
			Help:      "Number of (path, method) entries in the published permission index",
		},
	)

	// IndexRebuildDuration 权限索引重建耗时
	IndexRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of permission index rebuilds, storage read included",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

// RecordDecision 记录一次授权决策
func RecordDecision(outcome, reason string) {
	DecisionsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordIndexRebuild 记录一次索引重建，只有已发布的索引才更新条目数
func RecordIndexRebuild(err error, entries int, published bool, duration time.Duration) {
	IndexRebuildDuration.Observe(duration.Seconds())
	if err != nil {
		IndexRebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	IndexRebuildsTotal.WithLabelValues("ok").Inc()
	if !published {
		return
	}
	IndexEntries.Set(float64(entries))
}

// RecordIndexInvalidated 索引被清空
func RecordIndexInvalidated() {
	IndexEntries.Set(0)
}
