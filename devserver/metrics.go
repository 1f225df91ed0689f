/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package devserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetpipe"

type metrics struct {
	registry       *prometheus.Registry
	rebuilds       *prometheus.CounterVec
	rebuildSeconds *prometheus.HistogramVec
	clients        prometheus.Gauge
	connections    prometheus.Counter
	disconnections prometheus.Counter
	broadcasts     prometheus.Counter
	dropped        prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Watch-triggered rebuilds by asset group and result.",
		}, []string{"group", "result"}),
		rebuildSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of watch-triggered rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"group"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients.",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_connections_total",
			Help:      "Live-reload connections accepted.",
		}),
		disconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_disconnections_total",
			Help:      "Live-reload connections closed.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_broadcasts_total",
			Help:      "Reload messages broadcast.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "livereload_dropped_clients_total",
			Help:      "Clients dropped because their queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.rebuilds,
		m.rebuildSeconds,
		m.clients,
		m.connections,
		m.disconnections,
		m.broadcasts,
		m.dropped,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
