package mount

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ops       *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	readBytes prometheus.Counter
	handles   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, mountID string, direction string) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"mount_id": mountID, "direction": direction}

	m := &metrics{}
	m.ops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "encviewfs",
		Subsystem:   "fuse",
		Name:        "operations_total",
		Help:        "Number of filesystem operations served, by operation and result.",
		ConstLabels: labels,
	}, []string{"op", "result"})
	reg.MustRegister(m.ops)
	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "encviewfs",
		Subsystem:   "fuse",
		Name:        "operation_seconds",
		Help:        "Time spent serving filesystem operations.",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.00005, 4, 10),
	}, []string{"op"})
	reg.MustRegister(m.latency)
	m.readBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "encviewfs",
		Subsystem:   "fuse",
		Name:        "read_bytes_total",
		Help:        "Number of transformed bytes returned by reads.",
		ConstLabels: labels,
	})
	reg.MustRegister(m.readBytes)
	m.handles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "encviewfs",
		Subsystem:   "fuse",
		Name:        "open_handles",
		Help:        "Number of open file handles.",
		ConstLabels: labels,
	})
	reg.MustRegister(m.handles)
	return m
}
