package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "totesys_etl_build_info",
			Help: "Build information of the totesys ETL job",
		},
		[]string{"version", "commit", "date"},
	)

	BatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totesys_etl_batch_total",
			Help: "Total number of batch cycles by stage and status",
		},
		[]string{"stage", "status"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "totesys_etl_batch_duration_seconds",
			Help:    "Duration of batch stages",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	TableRowsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totesys_etl_table_rows_extracted_total",
			Help: "Total number of rows captured per source table",
		},
		[]string{"table"},
	)

	TableWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totesys_etl_table_writes_total",
			Help: "Total number of per-table artifact writes by status",
		},
		[]string{"table", "status"},
	)

	JoinRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "totesys_etl_join_rows_dropped_total",
			Help: "Rows dropped from joined dimensions due to missing join keys",
		},
		[]string{"dimension"},
	)
)
