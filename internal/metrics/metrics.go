// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts scan ticks by outcome ("success", "failure").
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "ticks_total",
		Help:      "Scan ticks by outcome.",
	}, []string{"outcome"})

	// TickDuration observes end-to-end tick latency.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unifi_scanner",
		Name:      "tick_duration_seconds",
		Help:      "End-to-end duration of one scan tick.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// EventsCollected counts controller events admitted into the window.
	EventsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "events_collected_total",
		Help:      "Controller events admitted into the collection window.",
	})

	// IPSEventsCollected counts IPS events admitted into the window.
	IPSEventsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "ips_events_collected_total",
		Help:      "IPS events admitted into the collection window.",
	})

	// FindingsTotal counts findings by severity.
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "findings_total",
		Help:      "Findings produced, by severity.",
	}, []string{"severity"})

	// ParseFailures counts records the collector could not decode.
	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "parse_failures_total",
		Help:      "Controller records skipped as undecodable.",
	})

	// UnknownEventTypes counts events that matched no rule.
	UnknownEventTypes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "unknown_event_types_total",
		Help:      "Events that matched no classification rule.",
	})

	// DeliveryFailures counts failed channel deliveries by channel.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unifi_scanner",
		Name:      "delivery_failures_total",
		Help:      "Failed report deliveries, by channel.",
	}, []string{"channel"})

	// LastSuccessfulRun exposes the checkpoint as a unix timestamp.
	LastSuccessfulRun = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "unifi_scanner",
		Name:      "last_successful_run_timestamp_seconds",
		Help:      "Unix timestamp of the last delivered report.",
	})
)
