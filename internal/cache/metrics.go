package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_fetches_total",
			Help: "Total number of settled cache fetches, by resource type and result",
		},
		[]string{"type", "result"},
	)

	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_hits_total",
			Help: "Total number of reads served from fresh cached data",
		},
		[]string{"type"},
	)

	cacheDedupJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_dedup_joins_total",
			Help: "Total number of reads that joined an in-flight fetch",
		},
		[]string{"type"},
	)

	cacheDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_discarded_responses_total",
			Help: "Total number of fetch responses dropped because a newer fetch superseded them",
		},
		[]string{"type"},
	)

	cacheRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_retries_total",
			Help: "Total number of automatic fetch retries",
		},
		[]string{"type"},
	)

	cacheFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kurosadmin_cache_fetch_duration_seconds",
			Help:    "Cache fetch duration in seconds, retry included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kurosadmin_cache_evictions_total",
			Help: "Total number of unobserved entries evicted",
		},
	)
)
