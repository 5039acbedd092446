/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rtsp

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks connection counts for a Client or Server. Unregistered by
// default (newMetrics creates bare collectors); callers that want these
// exported register them with Register.
type metrics struct {
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	requestsHandled   prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravenna_rtsp_connections_opened_total",
			Help: "RTSP connections dialed or accepted.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravenna_rtsp_connections_closed_total",
			Help: "RTSP connections closed.",
		}),
		requestsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ravenna_rtsp_requests_handled_total",
			Help: "RTSP requests dispatched to a server handler.",
		}),
	}
}

// Register registers m's collectors with reg.
func (m *metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.connectionsOpened, m.connectionsClosed, m.requestsHandled} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
