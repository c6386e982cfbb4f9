// Copyright 2026 CarePilot
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepilot_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"endpoint", "status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carepilot_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	promActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepilot_actions_total",
			Help: "Total number of proposed actions by validation result",
		},
		[]string{"kind", "result"},
	)
	promProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carepilot_provider_requests_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "status"},
	)
	promGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carepilot_generation_duration_seconds",
			Help:    "Content generation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promActionsTotal)
	prometheus.MustRegister(promProviderRequests)
	prometheus.MustRegister(promGenerationDuration)
}
