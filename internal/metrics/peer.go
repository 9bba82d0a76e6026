// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PeerRegistrations tracks admission attempts handled by the peer
	// registry.
	PeerRegistrations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "registrations_total",
			Help:      "Total number of peer registration attempts",
		},
		[]string{"status"}, // accepted, rejected
	)

	// PeerHeartbeats tracks heartbeat probes sent to known peers.
	PeerHeartbeats = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "heartbeats_total",
			Help:      "Total number of peer heartbeat probes",
		},
		[]string{"status"}, // ok, failed
	)

	// PeersActive tracks the number of peers considered active (seen
	// within the staleness window).
	PeersActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "active",
			Help:      "Number of peers currently considered active",
		},
	)

	// ReplicationAttempts tracks outbound content replication fan-out.
	ReplicationAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peers",
			Name:      "replication_attempts_total",
			Help:      "Total number of outbound content replication attempts",
		},
		[]string{"status"}, // success, failure
	)
)
