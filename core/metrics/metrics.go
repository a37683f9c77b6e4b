package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bot metrics, registered in the default Prometheus registry.
var (
	// updates by variant: message, channel_post, chat_member, callback, unrecognized
	updatesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_updates_received_total",
			Help: "Total number of received updates by kind",
		},
		[]string{"kind"},
	)

	// replied, ignored, failed, unknown
	dispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_dispatch_outcomes_total",
			Help: "Total number of dispatched updates by outcome",
		},
		[]string{"outcome"},
	)

	commandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_commands_processed_total",
			Help: "Total number of processed commands by type",
		},
		[]string{"command"},
	)

	callbacksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_callbacks_processed_total",
			Help: "Total number of processed callback queries by token kind",
		},
		[]string{"kind"},
	)

	chartFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_chart_fetches_total",
			Help: "Total number of chart image requests by chart kind and HTTP status",
		},
		[]string{"kind", "code"},
	)

	chartFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartbot_chart_fetch_duration_seconds",
			Help:    "Duration of chart image requests in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"kind"},
	)

	deliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartbot_delivery_errors_total",
			Help: "Total number of failed Bot API calls by method",
		},
		[]string{"method"},
	)

	panicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartbot_panics_recovered_total",
			Help: "Total number of panics recovered while dispatching updates",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func UpdateReceived(kind string) {
	updatesReceived.WithLabelValues(kind).Inc()
}

func DispatchOutcome(outcome string) {
	dispatchOutcomes.WithLabelValues(outcome).Inc()
}

func CommandProcessed(command string) {
	commandsProcessed.WithLabelValues(command).Inc()
}

func CallbackProcessed(kind string) {
	callbacksProcessed.WithLabelValues(kind).Inc()
}

// ChartFetched records one imaging request. code is 0 for transport failures.
func ChartFetched(kind string, code int, took time.Duration) {
	chartFetches.WithLabelValues(kind, strconv.Itoa(code)).Inc()
	chartFetchDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func DeliveryFailed(method string) {
	deliveryErrors.WithLabelValues(method).Inc()
}

func PanicRecovered() {
	panicsRecovered.Inc()
}
