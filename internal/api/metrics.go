package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_api_requests_total",
			Help: "Total number of admin API calls, by method and response status",
		},
		[]string{"method", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kurosadmin_api_request_duration_seconds",
			Help:    "Admin API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
