package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "community_relay_connections",
		Help: "Number of open chat relay connections",
	})

	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "community_relay_rooms",
		Help: "Number of chat rooms with at least one connection",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_relay_frames_total",
		Help: "Frames received from clients by event name",
	}, []string{"event"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "community_relay_dropped_total",
		Help: "Outbound frames dropped because the connection queue was full or closed",
	}, []string{"reason"})
)
