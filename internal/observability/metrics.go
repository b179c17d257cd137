package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "face",
		Name:      "detect_requests_total",
		Help:      "Detection pipeline runs by scenario and result code",
	}, []string{"scenario", "code"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "face",
		Name:      "faces_detected_total",
		Help:      "Total number of faces returned by the detection pipeline",
	})

	MatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "face",
		Name:      "match_results_total",
		Help:      "Pairwise match results by result code",
	}, []string{"code"})

	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "face",
		Name:      "search_requests_total",
		Help:      "Search requests by result code",
	}, []string{"code"})

	SearchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "face",
		Name:      "search_candidates",
		Help:      "Number of enrolled images scored per search",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	EnrolledImages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "face",
		Name:      "enrolled_images_total",
		Help:      "Images enrolled into the identity store",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "face",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	OraclePoolWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "face",
		Name:      "oracle_pool_wait_seconds",
		Help:      "Time spent waiting for a free oracle session",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	ReindexQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "face",
		Name:      "reindex_queue_depth",
		Help:      "Number of pending re-index tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "face",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "face",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
