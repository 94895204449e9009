package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyword_bot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	messagesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyword_bot_messages_ignored_total",
		Help: "Total number of messages ignored because the chat is not allow-listed",
	})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyword_bot_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	// Keyword metrics
	keywordMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyword_bot_keyword_matches_total",
		Help: "Total number of keyword matches",
	}, []string{"keyword"})

	repliesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyword_bot_replies_sent_total",
		Help: "Total number of keyword replies sent",
	})

	permissionDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyword_bot_permission_denied_total",
		Help: "Total number of matches suppressed by a permission check",
	})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyword_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyword_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyword_bot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Known users gauge
	knownUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyword_bot_known_users",
		Help: "Number of users the stats engine has seen",
	})

	// Registered keywords gauge
	registeredKeywords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyword_bot_registered_keywords",
		Help: "Number of registered keywords",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageIgnored records a message dropped by the allow-list
func (m *Metrics) RecordMessageIgnored() {
	messagesIgnored.Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordKeywordMatch records a keyword match
func (m *Metrics) RecordKeywordMatch(keyword string) {
	keywordMatches.WithLabelValues(keyword).Inc()
}

// RecordReplySent records a sent keyword reply
func (m *Metrics) RecordReplySent() {
	repliesSent.Inc()
}

// RecordPermissionDenied records a suppressed match
func (m *Metrics) RecordPermissionDenied() {
	permissionDenied.Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetKnownUsers sets the known users gauge
func (m *Metrics) SetKnownUsers(count float64) {
	knownUsers.Set(count)
}

// SetRegisteredKeywords sets the registered keywords gauge
func (m *Metrics) SetRegisteredKeywords(count float64) {
	registeredKeywords.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
