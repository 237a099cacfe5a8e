// Package metrics provides Prometheus metrics for the lanboard server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Board holds all Prometheus metrics for the message board.
type Board struct {
	registry *prometheus.Registry

	MessagesAdmitted prometheus.Counter
	MessagesDeleted  prometheus.Counter
	BoardClears      prometheus.Counter
	Broadcasts       prometheus.Counter
	ClientsPruned    prometheus.Counter
	UploadBytes      prometheus.Counter
	FilesDeleted     prometheus.Counter
	FilesSwept       prometheus.Counter

	ConnectedClients prometheus.Gauge
	HistoryLength    prometheus.Gauge
}

// New creates the board metrics on a fresh registry, including the standard
// Go and process collectors.
func New() *Board {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Board{
		registry: reg,
		MessagesAdmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_messages_admitted_total",
			Help: "Total messages admitted to the board",
		}),
		MessagesDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_messages_deleted_total",
			Help: "Total messages deleted from the board",
		}),
		BoardClears: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_board_clears_total",
			Help: "Total board clear operations",
		}),
		Broadcasts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_broadcasts_total",
			Help: "Total broadcast fan-outs",
		}),
		ClientsPruned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_clients_pruned_total",
			Help: "Total clients removed after failed delivery",
		}),
		UploadBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_upload_bytes_total",
			Help: "Total bytes written to the attachment store",
		}),
		FilesDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_files_deleted_total",
			Help: "Total attachment files deleted by message lifecycle",
		}),
		FilesSwept: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lanboard_files_swept_total",
			Help: "Total attachment files removed by retention sweeps",
		}),
		ConnectedClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lanboard_connected_clients",
			Help: "Currently connected realtime clients",
		}),
		HistoryLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lanboard_history_length",
			Help: "Current number of messages in history",
		}),
	}
}

// Handler returns an HTTP handler exposing the registry.
func (b *Board) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}
