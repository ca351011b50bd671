package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chit_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chit_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	ChatsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_chats_created_total",
			Help: "Total chats created",
		},
	)

	ChatsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_chats_read_total",
			Help: "Total chat history reads",
		},
	)

	ChatsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_chats_deleted_total",
			Help: "Total chats deleted",
		},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_messages_posted_total",
			Help: "Total message envelopes appended",
		},
	)

	// Realtime metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chit_ws_connections",
			Help: "Currently open realtime connections",
		},
	)

	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_room_joins_total",
			Help: "Total successful room joins",
		},
	)

	RoomBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chit_room_broadcasts_total",
			Help: "Total frames broadcast to room members",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chit_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
