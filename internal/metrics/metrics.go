package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_kafka_messages_total",
			Help: "Total messages consumed from Kafka.",
		},
		[]string{"topic", "msg_type"},
	)

	LinkStateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_linkstate_events_total",
			Help: "Decoded link-state events by NLRI type and action.",
		},
		[]string{"nlri_type", "action"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsingester_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"pipeline", "op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_db_rows_affected_total",
			Help: "DB rows written or deleted.",
		},
		[]string{"pipeline", "table", "op"},
	)

	ArchiveDedupConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_archive_dedup_conflicts_total",
			Help: "Archive dedup hits (ON CONFLICT DO NOTHING skips).",
		},
		[]string{"topic"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_parse_errors_total",
			Help: "Parse failures by stage.",
		},
		[]string{"stage", "reason"},
	)

	LastMsgTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lsingester_last_msg_timestamp_seconds",
			Help: "Unix timestamp of last processed message.",
		},
		[]string{"pipeline", "router_id"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsingester_batch_size",
			Help:    "Batch sizes flushed to DB.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000},
		},
		[]string{"pipeline"},
	)

	TopologyPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsingester_topology_purged_total",
			Help: "Topology rows purged on peer down.",
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		KafkaMessagesTotal,
		LinkStateEventsTotal,
		DBWriteDuration,
		DBRowsAffectedTotal,
		ArchiveDedupConflictsTotal,
		ParseErrorsTotal,
		LastMsgTimestamp,
		BatchSize,
		TopologyPurgedTotal,
	)
}
