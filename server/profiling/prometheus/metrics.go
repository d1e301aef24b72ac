/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/redline-team/redline/internal/version"
)

const namespace = "redline"

// Metrics manages the metric information that Redline is trying to measure.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	sessionsActive    prometheus.Gauge
	connectionsActive prometheus.Gauge

	updatesReceivedTotal    prometheus.Counter
	updateBytesTotal        prometheus.Counter
	presenceEventsTotal     prometheus.Counter
	snapshotSaveSeconds     prometheus.Histogram
	snapshotSaveFailures    prometheus.Counter
	authFailOpenAdmitsTotal prometheus.Counter
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "The number of resident synchronization sessions.",
		}),
		connectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "connections_active",
			Help:      "The number of attached client connections.",
		}),
		updatesReceivedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "updates_received_total",
			Help:      "The total count of updates received from clients.",
		}),
		updateBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "update_bytes_total",
			Help:      "The total bytes of updates received from clients.",
		}),
		presenceEventsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "presence_events_total",
			Help:      "The total count of awareness events relayed between clients.",
		}),
		snapshotSaveSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "snapshot_save_seconds",
			Help:      "The time spent durably saving document snapshots.",
		}),
		snapshotSaveFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "snapshot_save_failures_total",
			Help:      "The total count of failed snapshot saves.",
		}),
		authFailOpenAdmitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "fail_open_admits_total",
			Help:      "The total count of connections admitted because the access service was unreachable.",
		}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddSession increments the resident session gauge.
func (m *Metrics) AddSession() {
	m.sessionsActive.Inc()
}

// RemoveSession decrements the resident session gauge.
func (m *Metrics) RemoveSession() {
	m.sessionsActive.Dec()
}

// AddConnection increments the attached connection gauge.
func (m *Metrics) AddConnection() {
	m.connectionsActive.Inc()
}

// RemoveConnection decrements the attached connection gauge.
func (m *Metrics) RemoveConnection() {
	m.connectionsActive.Dec()
}

// ObserveUpdate records one received update of the given size.
func (m *Metrics) ObserveUpdate(bytes int) {
	m.updatesReceivedTotal.Inc()
	m.updateBytesTotal.Add(float64(bytes))
}

// ObservePresenceEvent records one relayed awareness event.
func (m *Metrics) ObservePresenceEvent() {
	m.presenceEventsTotal.Inc()
}

// ObserveSnapshotSave records the duration of a successful snapshot save.
func (m *Metrics) ObserveSnapshotSave(seconds float64) {
	m.snapshotSaveSeconds.Observe(seconds)
}

// IncSnapshotSaveFailures records one failed snapshot save.
func (m *Metrics) IncSnapshotSaveFailures() {
	m.snapshotSaveFailures.Inc()
}

// FailOpenCounter returns the counter of fail-open admissions, consumed by
// the authentication gate.
func (m *Metrics) FailOpenCounter() prometheus.Counter {
	return m.authFailOpenAdmitsTotal
}
