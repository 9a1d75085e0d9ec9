package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var FramesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depthview_frames_total",
		Help: "depth frames accepted into the book view",
	},
)

var DroppedFramesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depthview_dropped_frames_total",
		Help: "inbound messages discarded as malformed or irrelevant",
	},
)

var ReconnectsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depthview_reconnects_total",
		Help: "venue websocket reconnect attempts",
	},
)

var ConnectedGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "depthview_connected",
		Help: "1 while the venue websocket is open",
	},
)

var ActiveSubscriptionsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "depthview_active_subscriptions",
		Help: "entries in the active subscription set",
	},
)

// Handler returns the /metrics handler with all instruments registered.
func Handler() http.Handler {
	reg := prometheus.NewRegistry()

	reg.MustRegister(FramesTotal)
	reg.MustRegister(DroppedFramesTotal)
	reg.MustRegister(ReconnectsTotal)
	reg.MustRegister(ConnectedGauge)
	reg.MustRegister(ActiveSubscriptionsGauge)
	reg.MustRegister(collectors.NewGoCollector())

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
