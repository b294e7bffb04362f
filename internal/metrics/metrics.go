package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wxsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	tasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wxsync",
			Name:      "tasks_created_total",
			Help:      "Sync tasks created.",
		},
	)

	itemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wxsync",
			Name:      "task_items_processed_total",
			Help:      "Task items processed by outcome.",
		},
		[]string{"outcome"},
	)

	customersSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wxsync",
			Name:      "customers_synced_total",
			Help:      "Customers fetched during sync runs.",
		},
	)

	apiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wxsync",
			Name:      "wxwork_api_calls_total",
			Help:      "Upstream WeChat Work API calls by method.",
		},
		[]string{"method", "result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wxsync",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting per queue.",
		},
		[]string{"queue"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wxsync",
			Name:      "item_sync_duration_seconds",
			Help:      "Duration of one staff item sync.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, tasksCreated, itemsProcessed, customersSynced, apiCalls, queueDepth, syncDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncTaskCreated() {
	tasksCreated.Inc()
}

func IncItemProcessed(outcome string) {
	itemsProcessed.WithLabelValues(outcome).Inc()
}

func AddCustomersSynced(n int) {
	customersSynced.Add(float64(n))
}

func IncAPICall(method, result string) {
	apiCalls.WithLabelValues(method, result).Inc()
}

func SetQueueDepth(queue string, depth int64) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func ObserveItemSync(seconds float64) {
	syncDuration.Observe(seconds)
}
