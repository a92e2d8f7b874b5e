package observability

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_sent_total",
		Help: "Submissions delivered to the collection API.",
	})
	enqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_enqueued_total",
		Help: "Capture and alert events accepted into the outbound queues.",
	})
	sendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_failures_total",
		Help: "Delivery attempts that exhausted their retries in one cycle.",
	})
	validated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_validated_total",
		Help: "Delivered submissions the server confirmed as VALID.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_rejected_total",
		Help: "Delivered submissions the server resolved as anything but VALID.",
	})
	discarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_discarded_total",
		Help: "Pending entries dropped because their stored payload was gone.",
	})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_dead_lettered_total",
		Help: "Entries evicted from pending after exceeding max delivery attempts.",
	})
	network := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_network_status",
		Help: "Delivery health: 1 ok, 0 degraded.",
	})
	pendingData := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_pending_requests",
		Help: "Data samples awaiting first delivery.",
	})
	pendingAlerts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_pending_alerts",
		Help: "Alert messages awaiting first delivery.",
	})
	tracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_tracked_samples",
		Help: "Delivered submissions awaiting a validation verdict.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_submit_latency_seconds",
		Help:    "Latency of one submission to the collection API.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	prometheus.MustRegister(sent, enqueued, sendFailures, validated, rejected,
		discarded, deadLettered, network, pendingData, pendingAlerts, tracked, latency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"relay_sent_total":          sent,
			"relay_enqueued_total":      enqueued,
			"relay_send_failures_total": sendFailures,
			"relay_validated_total":     validated,
			"relay_rejected_total":      rejected,
			"relay_discarded_total":     discarded,
			"relay_dead_lettered_total": deadLettered,
		},
		gauges: map[string]prometheus.Gauge{
			"relay_network_status":   network,
			"relay_pending_requests": pendingData,
			"relay_pending_alerts":   pendingAlerts,
			"relay_tracked_samples":  tracked,
		},
		histos: map[string]prometheus.Observer{
			"relay_submit_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v", msg, err)
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v", msg, err)
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) SetNetworkStatus(s domain.NetworkStatus) {
	v := 0.0
	if s == domain.NetworkOK {
		v = 1
	}
	p.SetGauge("relay_network_status", v)
}

func (p *PromObs) Notify(level domain.AlertLevel, code string) {
	log.Printf("NOTIFY [%s]: %s", level, code)
}

func (p *PromObs) RecordDrop(queue string, seq uint64, err error) {
	p.IncCounter("relay_dead_lettered_total", 1)
	log.Printf("dead-lettered entry queue=%s seq=%d err=%v", queue, seq, err)
}

var _ ports.Observability = (*PromObs)(nil)
