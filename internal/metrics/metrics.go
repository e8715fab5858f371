// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts classified packets by ingestion lane and verdict
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_packets_total",
			Help: "Total number of packets classified",
		},
		[]string{"lane", "verdict"},
	)

	// ClassifyErrorsTotal counts dropped packets by reason
	ClassifyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_classify_errors_total",
			Help: "Total number of packets dropped by the classifier",
		},
		[]string{"lane", "reason"},
	)

	// CaptureReadErrorsTotal counts non-timeout read errors from capture handles
	CaptureReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_capture_read_errors_total",
			Help: "Total number of capture read errors",
		},
		[]string{"lane"},
	)

	// CaptureKernelDrops tracks frames the kernel dropped before a lane read them
	CaptureKernelDrops = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sourcewatch_capture_kernel_drops",
			Help: "Frames dropped by the kernel because the capture ring was full",
		},
		[]string{"lane"},
	)

	// QueueDropsTotal counts records rejected by a full hand-off queue
	QueueDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_queue_drops_total",
			Help: "Total number of records dropped because the queue was full",
		},
		[]string{"queue"},
	)

	// QueueDepth tracks the approximate number of queued records
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sourcewatch_queue_depth",
			Help: "Approximate number of records waiting in the queue",
		},
		[]string{"queue"},
	)

	// QueueCapacity exposes the configured queue capacity
	QueueCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sourcewatch_queue_capacity",
			Help: "Configured capacity of the queue",
		},
		[]string{"queue"},
	)

	// RecordsReportedTotal counts records delivered to reporters
	RecordsReportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_records_reported_total",
			Help: "Total number of records handed to reporters",
		},
		[]string{"reporter"},
	)

	// ReporterErrorsTotal counts reporter failures
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcewatch_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter"},
	)
)
