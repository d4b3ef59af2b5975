// Package stats exports PeerTalk's per-peer and aggregate counters as
// Prometheus metrics, grounded in facebook-time's
// ptp/sptp/stats.PrometheusExporter (a registry-based exporter over
// github.com/prometheus/client_golang) but implemented as a direct
// prometheus.Collector instead of a scrape-and-republish loop, since
// PeerTalk's Source already lives in-process (no HTTP hop needed).
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

// Source is the read-only view the collector needs; satisfied by
// *peertalk.Context without this package importing peertalk (which would
// be a cycle — peertalk imports stats for its GetStats/registration glue).
type Source interface {
	Snapshot() Snapshot
}

// PeerSnapshot is one peer's stats at collection time.
type PeerSnapshot struct {
	Id      types.PeerId
	Name    string
	State   types.State
	Stats   types.Stats
	Pressure int
}

// Snapshot is everything the collector needs to render metrics for one
// Collect() call.
type Snapshot struct {
	Peers []PeerSnapshot
}

// Collector implements prometheus.Collector over a Source, so it can be
// registered into any application's existing registry
// (`registry.MustRegister(stats.NewCollector(ctx))`) the way
// PrometheusExporter registers ad-hoc gauges in facebook-time.
type Collector struct {
	source Source

	bytesIn   *prometheus.Desc
	bytesOut  *prometheus.Desc
	msgsIn    *prometheus.Desc
	msgsOut   *prometheus.Desc
	rtt       *prometheus.Desc
	quality   *prometheus.Desc
	pressure  *prometheus.Desc
	crcErrors *prometheus.Desc
	peerCount *prometheus.Desc
}

// NewCollector builds a Collector reading from source on every Collect.
func NewCollector(source Source) *Collector {
	labels := []string{"peer_id", "peer_name"}
	return &Collector{
		source:    source,
		bytesIn:   prometheus.NewDesc("peertalk_peer_bytes_in_total", "Bytes received from this peer", labels, nil),
		bytesOut:  prometheus.NewDesc("peertalk_peer_bytes_out_total", "Bytes sent to this peer", labels, nil),
		msgsIn:    prometheus.NewDesc("peertalk_peer_messages_in_total", "Messages received from this peer", labels, nil),
		msgsOut:   prometheus.NewDesc("peertalk_peer_messages_out_total", "Messages sent to this peer", labels, nil),
		rtt:       prometheus.NewDesc("peertalk_peer_rtt_milliseconds", "Rolling RTT estimate for this peer", labels, nil),
		quality:   prometheus.NewDesc("peertalk_peer_quality", "Peer link quality banding (0-100)", labels, nil),
		pressure:  prometheus.NewDesc("peertalk_peer_queue_pressure", "Send queue pressure (0-100)", labels, nil),
		crcErrors: prometheus.NewDesc("peertalk_peer_crc_errors_total", "Framer CRC failures for this peer", labels, nil),
		peerCount: prometheus.NewDesc("peertalk_peers", "Number of known peers by state", []string{"state"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesIn
	ch <- c.bytesOut
	ch <- c.msgsIn
	ch <- c.msgsOut
	ch <- c.rtt
	ch <- c.quality
	ch <- c.pressure
	ch <- c.crcErrors
	ch <- c.peerCount
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()
	byState := map[types.State]int{}
	for _, p := range snap.Peers {
		byState[p.State]++
		labels := []string{p.Id.String(), p.Name}
		ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(p.Stats.BytesIn), labels...)
		ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(p.Stats.BytesOut), labels...)
		ch <- prometheus.MustNewConstMetric(c.msgsIn, prometheus.CounterValue, float64(p.Stats.MessagesIn), labels...)
		ch <- prometheus.MustNewConstMetric(c.msgsOut, prometheus.CounterValue, float64(p.Stats.MessagesOut), labels...)
		ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, p.Stats.RTTMillis, labels...)
		ch <- prometheus.MustNewConstMetric(c.quality, prometheus.GaugeValue, float64(p.Stats.Quality), labels...)
		ch <- prometheus.MustNewConstMetric(c.pressure, prometheus.GaugeValue, float64(p.Pressure), labels...)
		ch <- prometheus.MustNewConstMetric(c.crcErrors, prometheus.CounterValue, float64(p.Stats.FramesCRCErr), labels...)
	}
	for state, n := range byState {
		ch <- prometheus.MustNewConstMetric(c.peerCount, prometheus.GaugeValue, float64(n), state.String())
	}
}
