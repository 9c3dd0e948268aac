package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Name:      "active_rooms",
		Help:      "Rooms with at least one connection.",
	})
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Name:      "connections",
		Help:      "Open relay connections.",
	})
	metricRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meet",
		Name:      "rejections_total",
		Help:      "Connections refused by the relay, by reason.",
	}, []string{"reason"})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Name:      "evictions_total",
		Help:      "Connections evicted for missing heartbeats.",
	})
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meet",
		Name:      "messages_total",
		Help:      "Client messages handled by the relay, by type.",
	}, []string{"type"})
)
