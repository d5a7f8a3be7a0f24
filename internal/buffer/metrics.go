package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsProvider exposes the observable counters a running Buffer accumulates,
// shaped after mrcgq-222's SwitcherStats provider interface so a Collector
// can be built without giving Prometheus direct access to engine state.
type StatsProvider interface {
	InflightBytes() int
	RetransmissionLen() int
	ReorderLen() int
	AdvertisedWindowBytes() uint32
	TotalRetransmissions() uint64
	TotalAcked() uint64
	TotalSendAcks() uint64
}

// StatsCollector is a prometheus.Collector exposing a connection's buffer
// engine counters, grounded on mrcgq-222's SwitcherCollector shape
// (descriptor fields + statsProvider + Collect).
type StatsCollector struct {
	stats StatsProvider

	inflightBytesDesc     *prometheus.Desc
	retransQueueLenDesc   *prometheus.Desc
	reorderBufLenDesc     *prometheus.Desc
	advertisedWindowDesc  *prometheus.Desc
	totalRetransmitDesc   *prometheus.Desc
	totalAckedDesc        *prometheus.Desc
	totalSendAcksDesc     *prometheus.Desc
}

// NewStatsCollector wires a StatsProvider (usually a *Counters, see below)
// into a prometheus.Collector for a single connection, labeled by connID.
func NewStatsCollector(connID string, stats StatsProvider) *StatsCollector {
	labels := prometheus.Labels{"conn_id": connID}
	return &StatsCollector{
		stats: stats,
		inflightBytesDesc: prometheus.NewDesc(
			"utp_buffer_inflight_bytes", "Bytes sent but not yet acknowledged.", nil, labels),
		retransQueueLenDesc: prometheus.NewDesc(
			"utp_buffer_retransmission_queue_length", "Packets awaiting acknowledgment.", nil, labels),
		reorderBufLenDesc: prometheus.NewDesc(
			"utp_buffer_reorder_buffer_length", "Out-of-order packets currently buffered.", nil, labels),
		advertisedWindowDesc: prometheus.NewDesc(
			"utp_buffer_advertised_window_bytes", "Currently advertised receive window.", nil, labels),
		totalRetransmitDesc: prometheus.NewDesc(
			"utp_buffer_retransmissions_total", "Total packets retransmitted.", nil, labels),
		totalAckedDesc: prometheus.NewDesc(
			"utp_buffer_acked_packets_total", "Total packets acknowledged.", nil, labels),
		totalSendAcksDesc: prometheus.NewDesc(
			"utp_buffer_send_ack_events_total", "Total send_ack intents emitted.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inflightBytesDesc
	ch <- c.retransQueueLenDesc
	ch <- c.reorderBufLenDesc
	ch <- c.advertisedWindowDesc
	ch <- c.totalRetransmitDesc
	ch <- c.totalAckedDesc
	ch <- c.totalSendAcksDesc
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.inflightBytesDesc, prometheus.GaugeValue, float64(c.stats.InflightBytes()))
	ch <- prometheus.MustNewConstMetric(c.retransQueueLenDesc, prometheus.GaugeValue, float64(c.stats.RetransmissionLen()))
	ch <- prometheus.MustNewConstMetric(c.reorderBufLenDesc, prometheus.GaugeValue, float64(c.stats.ReorderLen()))
	ch <- prometheus.MustNewConstMetric(c.advertisedWindowDesc, prometheus.GaugeValue, float64(c.stats.AdvertisedWindowBytes()))
	ch <- prometheus.MustNewConstMetric(c.totalRetransmitDesc, prometheus.CounterValue, float64(c.stats.TotalRetransmissions()))
	ch <- prometheus.MustNewConstMetric(c.totalAckedDesc, prometheus.CounterValue, float64(c.stats.TotalAcked()))
	ch <- prometheus.MustNewConstMetric(c.totalSendAcksDesc, prometheus.CounterValue, float64(c.stats.TotalSendAcks()))
}

// Counters is a simple StatsProvider implementation that wraps a *Buffer
// plus monotonically increasing lifetime counters the connection task
// updates as Events are observed.
type Counters struct {
	Buf                   *Buffer
	totalRetransmissions  uint64
	totalAcked            uint64
	totalSendAcks         uint64
}

func NewCounters(buf *Buffer) *Counters { return &Counters{Buf: buf} }

func (c *Counters) InflightBytes() int             { return c.Buf.InflightBytes() }
func (c *Counters) RetransmissionLen() int         { return c.Buf.RetransmissionLen() }
func (c *Counters) ReorderLen() int                { return c.Buf.ReorderLen() }
func (c *Counters) AdvertisedWindowBytes() uint32  { return c.Buf.AdvertisedWindow() }
func (c *Counters) TotalRetransmissions() uint64   { return c.totalRetransmissions }
func (c *Counters) TotalAcked() uint64             { return c.totalAcked }
func (c *Counters) TotalSendAcks() uint64          { return c.totalSendAcks }

// Observe updates lifetime counters from a batch of Events returned by an
// engine entry point. Call it after every HandlePacket/FillWindow/
// RetransmitOldest call.
func (c *Counters) Observe(events []Event, retransmitted bool) {
	if retransmitted {
		c.totalRetransmissions++
	}
	for _, e := range events {
		switch e.Kind {
		case EventAcked:
			c.totalAcked += uint64(len(e.Acked))
		case EventSendAck:
			c.totalSendAcks++
		}
	}
}
