// Package metrics exposes Prometheus counters for the long-running
// parts of a session: the heartbeat sender and the page transfer loop.
// A CLI that never starts the metrics HTTP server still pays only the
// cost of incrementing a counter nobody scrapes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbridge_heartbeats_sent_total",
		Help: "Heartbeat datagrams sent to the appliance.",
	})
	HeartbeatSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbridge_heartbeat_send_errors_total",
		Help: "Heartbeat datagrams that failed to send.",
	})
	PageChunksTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbridge_page_chunks_transferred_total",
		Help: "Page-transfer chunks read from the data channel.",
	})
	PageBytesTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbridge_page_bytes_transferred_total",
		Help: "Image payload bytes read from the data channel.",
	})
	PagesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanbridge_pages_emitted_total",
		Help: "Completed sides emitted to callers, including empty ones.",
	})
)

// ListenAndServe starts a /metrics endpoint on addr. It blocks until the
// server stops or errors; callers typically run it in its own goroutine.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
