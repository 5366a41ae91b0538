package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesInserted counts insert calls by result
	filesInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmrg_store_inserts_total",
		Help: "Total insert calls by result",
	}, []string{"result"})

	// recordsInserted counts stored records
	recordsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmrg_store_records_inserted_total",
		Help: "Total records written to the store",
	})

	// queryTotal counts queries by result
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmrg_store_queries_total",
		Help: "Total store queries by result",
	}, []string{"result"})

	// queryDuration tracks query latency
	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dmrg_store_query_duration_seconds",
		Help:    "Store query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	// cacheRequests counts query cache lookups by result
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmrg_store_cache_requests_total",
		Help: "Query cache lookups by result",
	}, []string{"result"})
)
