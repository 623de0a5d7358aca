// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (n *NoopMetrics) GetRegistry() *prometheus.Registry { return prometheus.NewRegistry() }

func (n *NoopMetrics) ObserveAPIEndpointDuration(string, string, string, float64) {}
func (n *NoopMetrics) IncrementHTTPRequests()                                      {}
func (n *NoopMetrics) IncrementHTTPErrors()                                        {}
func (n *NoopMetrics) IncrementLLMRequests(string)                                 {}
func (n *NoopMetrics) ObserveTokenUsage(string, int, int)                          {}
func (n *NoopMetrics) IncrementAnnotationOutcome(string)                           {}
func (n *NoopMetrics) IncrementCacheLookup(string)                                 {}
func (n *NoopMetrics) ObserveUpstreamDuration(string, float64)                     {}
func (n *NoopMetrics) IncrementUpstreamErrors(string)                              {}
