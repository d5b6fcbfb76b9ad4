// Package metrics collects and exposes Prometheus metrics for the scheduling
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  prometheus.Histogram

	bookingsCreated     prometheus.Counter
	bookingConflicts    prometheus.Counter
	reschedules         prometheus.Counter
	availabilityQueries prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduling_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduling_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_bookings_created_total",
			Help: "Appointments successfully created.",
		}),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_booking_conflicts_total",
			Help: "Booking or reschedule attempts rejected because the slot was taken.",
		}),
		reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_reschedules_total",
			Help: "Appointments successfully moved to a new slot.",
		}),
		availabilityQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduling_availability_queries_total",
			Help: "Slot availability queries served.",
		}),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.bookingsCreated,
		c.bookingConflicts,
		c.reschedules,
		c.availabilityQueries,
	)

	return c
}

func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordBookingCreated() { c.bookingsCreated.Inc() }

func (c *Collector) RecordBookingConflict() { c.bookingConflicts.Inc() }

func (c *Collector) RecordReschedule() { c.reschedules.Inc() }

func (c *Collector) RecordAvailabilityQuery() { c.availabilityQueries.Inc() }

// Handler serves the /metrics scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
