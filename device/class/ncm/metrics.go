package ncm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts NCM traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesSent      prometheus.Counter
	framesReceived  prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	zlpsSent        prometheus.Counter
	protocolErrors  prometheus.Counter
	transferErrors  *prometheus.CounterVec
	linkTransitions prometheus.Counter
	linkUp          prometheus.Gauge
}

// NewMetrics creates the NCM collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_frames_sent",
			Help: "The total number of datagrams sent to the host",
		}),
		framesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_frames_received",
			Help: "The total number of datagrams received from the host",
		}),
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_bytes_sent",
			Help: "The total number of datagram bytes sent",
		}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_bytes_received",
			Help: "The total number of datagram bytes received",
		}),
		packetsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_packets_sent",
			Help: "The total number of bulk IN packets written, including ZLPs",
		}),
		packetsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_packets_received",
			Help: "The total number of bulk OUT packets read",
		}),
		zlpsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_zlps_sent",
			Help: "The total number of zero-length packets terminating an NTB",
		}),
		protocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_protocol_errors",
			Help: "The total number of malformed NTBs dropped",
		}),
		transferErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "usbncm_transfer_errors",
			Help: "The total number of failed endpoint transfers",
		}, []string{"direction"}),
		linkTransitions: f.NewCounter(prometheus.CounterOpts{
			Name: "usbncm_link_transitions",
			Help: "The total number of link enable/disable transitions",
		}),
		linkUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "usbncm_link_up",
			Help: "Whether the data interface is in its active setting",
		}),
	}
}

func (m *Metrics) sent(datagram, packets, zlps int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(datagram))
	m.packetsSent.Add(float64(packets))
	m.zlpsSent.Add(float64(zlps))
}

func (m *Metrics) received(datagram int) {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
	m.bytesReceived.Add(float64(datagram))
}

func (m *Metrics) packetReceived() {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) transferError(direction string) {
	if m == nil {
		return
	}
	m.transferErrors.WithLabelValues(direction).Inc()
}

func (m *Metrics) linkChanged(up bool) {
	if m == nil {
		return
	}
	m.linkTransitions.Inc()
	if up {
		m.linkUp.Set(1)
	} else {
		m.linkUp.Set(0)
	}
}
