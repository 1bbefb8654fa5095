// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the haptic bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectAttempts tracks the number of connection attempts to Intiface
	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haptic_connect_attempts_total",
		Help: "Total number of connection attempts to the Intiface server",
	})

	// ConnectFailures tracks the number of failed connection attempts
	ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haptic_connect_failures_total",
		Help: "Total number of failed connection attempts to the Intiface server",
	})

	// ScansTotal tracks the number of device scans performed
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haptic_scans_total",
		Help: "Total number of device scans performed",
	})

	// ScanDuration tracks how long a device scan takes
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "haptic_scan_duration_seconds",
		Help:    "Duration of device scans in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DevicesDiscovered tracks the number of devices known after the last scan
	DevicesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "haptic_devices_discovered",
		Help: "Number of devices known after the most recent scan",
	})

	// CommandsTotal tracks dispatched device commands by kind
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haptic_commands_total",
		Help: "Total number of device commands dispatched",
	}, []string{"command"})

	// CommandErrors tracks failed device commands by kind
	CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haptic_command_errors_total",
		Help: "Total number of device commands that failed",
	}, []string{"command"})

	// DeferredStops tracks deferred stop timers that fired successfully
	DeferredStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haptic_deferred_stops_total",
		Help: "Total number of deferred stop commands sent after a timed vibration",
	})

	// DeferredStopErrors tracks deferred stop timers that failed to send
	DeferredStopErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haptic_deferred_stop_errors_total",
		Help: "Total number of deferred stop commands that failed",
	})

	// RequestsTotal tracks HTTP requests by route and status code
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haptic_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"route", "code"})
)
