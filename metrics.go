package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsExporter exports bridge connection and tracking state to
// Prometheus.
type StatsExporter struct {
	plugin *Plugin

	connectedPlugins  *prometheus.Desc
	pendingToolCalls  *prometheus.Desc
	pendingDispatches *prometheus.Desc
	capabilitySubs    *prometheus.Desc
}

// newStatsExporter creates a new stats exporter.
func newStatsExporter(p *Plugin) *StatsExporter {
	return &StatsExporter{
		plugin: p,

		connectedPlugins: prometheus.NewDesc(
			prometheus.BuildFQName("mcp_bridge", "", "connected_plugins"),
			"Number of currently connected plugin channels",
			[]string{"mode"},
			nil,
		),

		pendingToolCalls: prometheus.NewDesc(
			prometheus.BuildFQName("mcp_bridge", "", "pending_tool_calls"),
			"Number of tools/call requests awaiting completion",
			nil,
			nil,
		),

		pendingDispatches: prometheus.NewDesc(
			prometheus.BuildFQName("mcp_bridge", "", "pending_dispatches"),
			"Number of in-flight plugin-channel dispatches awaiting a frame response",
			nil,
			nil,
		),

		capabilitySubs: prometheus.NewDesc(
			prometheus.BuildFQName("mcp_bridge", "", "capability_subscribers"),
			"Number of capability change bus subscriptions (three per MCP session)",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (s *StatsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.connectedPlugins
	ch <- s.pendingToolCalls
	ch <- s.pendingDispatches
	ch <- s.capabilitySubs
}

// Collect implements prometheus.Collector.
func (s *StatsExporter) Collect(ch chan<- prometheus.Metric) {
	stats := s.plugin.Stats()

	ch <- prometheus.MustNewConstMetric(
		s.connectedPlugins,
		prometheus.GaugeValue,
		float64(stats.ConnectedPlugins),
		stats.Mode,
	)

	ch <- prometheus.MustNewConstMetric(
		s.pendingToolCalls,
		prometheus.GaugeValue,
		float64(stats.PendingToolCalls),
	)

	ch <- prometheus.MustNewConstMetric(
		s.pendingDispatches,
		prometheus.GaugeValue,
		float64(stats.PendingDispatches),
	)

	ch <- prometheus.MustNewConstMetric(
		s.capabilitySubs,
		prometheus.GaugeValue,
		float64(stats.CapabilitySubs),
	)
}
