package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	stageDurationBucketStart  = 0.25
	stageDurationBucketFactor = 2.0
	stageDurationBucketCount  = 12
)

const (
	downloadBucketStart  = 0.1
	downloadBucketFactor = 2.5
	downloadBucketCount  = 10
)

var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "pipeline_stage_duration_seconds",
		Help: "Time taken to run one pipeline stage",
		Buckets: prometheus.ExponentialBuckets(
			stageDurationBucketStart,
			stageDurationBucketFactor,
			stageDurationBucketCount,
		),
	},
	[]string{"stage"},
)

var AudioDownloadDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "voicemail_audio_download_duration_seconds",
		Help: "Time taken to download one voicemail audio file",
		Buckets: prometheus.ExponentialBuckets(
			downloadBucketStart,
			downloadBucketFactor,
			downloadBucketCount,
		),
	},
)

var RecordsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_records_processed_total",
		Help: "Records advanced by each pipeline stage, by outcome",
	},
	[]string{"stage", "outcome"},
)

var TicksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_ticks_total",
		Help: "Full pipeline passes, by trigger source",
	},
	[]string{"trigger"},
)

var WebhooksReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Provider webhook events received, by handling result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(AudioDownloadDuration)
	prometheus.MustRegister(RecordsProcessed)
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(WebhooksReceived)
}
