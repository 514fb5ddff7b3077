// Package observability exposes the process's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument the scraper and publisher record into.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal         *prometheus.CounterVec
	DriverScrapesTotal  *prometheus.CounterVec
	ProductsNew         prometheus.Counter
	ProductsUpdated     prometheus.Counter
	ProductsDeactivated prometheus.Counter
	FetchDuration       *prometheus.HistogramVec
	FeedRequestsTotal   *prometheus.CounterVec
}

// New builds a Metrics set on a fresh registry, including the standard Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hamrss_scrape_cycles_total",
			Help: "Scrape cycles by final status.",
		}, []string{"status"}),
		DriverScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hamrss_driver_scrapes_total",
			Help: "Driver/category scrape attempts by source and status.",
		}, []string{"source", "status"}),
		ProductsNew: factory.NewCounter(prometheus.CounterOpts{
			Name: "hamrss_products_new_total",
			Help: "Products inserted for the first time.",
		}),
		ProductsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hamrss_products_updated_total",
			Help: "Products refreshed on re-scrape.",
		}),
		ProductsDeactivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "hamrss_products_deactivated_total",
			Help: "Products flipped inactive by the staleness sweep.",
		}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hamrss_category_scrape_duration_seconds",
			Help:    "Wall time spent scraping one driver/category.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"source"}),
		FeedRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hamrss_feed_requests_total",
			Help: "Feed endpoint requests by path pattern and status code.",
		}, []string{"route", "code"}),
	}
}
