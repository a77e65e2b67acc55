package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons used with RecordsDropped.
const (
	ReasonFiltered          = "filtered"
	ReasonEmpty             = "empty"
	ReasonInvalidID         = "invalid_id"
	ReasonInvalidAttributes = "invalid_attributes"
)

var (
	RecordsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_received_total",
			Help: "Total records received from the queue",
		})

	RecordsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_written_total",
			Help: "Total records handed to a sink",
		})

	RecordsRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_read_total",
			Help: "Total records read from a source",
		})

	RecordsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_sent_total",
			Help: "Total records sent to the queue",
		})

	RecordsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_deleted_total",
			Help: "Total records deleted from the queue",
		})

	RecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_utility_records_dropped_total",
			Help: "Total records dropped before submission, by reason",
		}, []string{"reason"})

	BatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_utility_batch_failures_total",
			Help: "Total batch submissions whose call failed",
		})

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqs_utility_batch_duration_seconds",
			Help:    "Histogram of batch submission duration",
			Buckets: prometheus.DefBuckets,
		})

	QueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqs_utility_queue_length",
			Help: "Approximate number of visible messages in a described queue",
		}, []string{"queue"})
)

func Setup() {
	prometheus.MustRegister(RecordsReceived)
	prometheus.MustRegister(RecordsWritten)
	prometheus.MustRegister(RecordsRead)
	prometheus.MustRegister(RecordsSent)
	prometheus.MustRegister(RecordsDeleted)
	prometheus.MustRegister(RecordsDropped)
	prometheus.MustRegister(BatchFailures)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(QueueLength)
}
