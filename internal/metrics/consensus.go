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
	// ProposalsStarted tracks proposal rounds initiated by this node when
	// acting as proposer.
	ProposalsStarted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "proposals_started_total",
			Help:      "Total number of proposal rounds started by this node",
		},
	)

	// VotesCast tracks votes this node cast on proposals received from
	// peers.
	VotesCast = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast on peer proposals",
		},
		[]string{"vote"}, // accept, reject
	)

	// CommitsApplied tracks blocks committed to the local chain, whether
	// proposed locally or received via commit broadcast from a peer.
	CommitsApplied = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "commits_applied_total",
			Help:      "Total number of blocks committed to the local chain",
		},
		[]string{"source"}, // proposer, follower
	)

	// ChainHeight tracks the index of the last committed block.
	ChainHeight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "chain_height",
			Help:      "Index of the last committed block",
		},
	)

	// ProposalRoundDuration tracks the time from proposal broadcast to
	// either commit or abandonment.
	ProposalRoundDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "proposal_round_duration_seconds",
			Help:      "Duration of a proposal round in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to 82s
		},
	)
)
