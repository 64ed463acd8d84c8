package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raterudder/zeverrelay/pkg/types"
)

const namespace = "zeverrelay"

// Metrics holds the prometheus collectors updated by the poller.
type Metrics struct {
	registry *prometheus.Registry

	power       prometheus.Gauge
	energyToday prometheus.Gauge
	daylight    prometheus.Gauge
	lastReading prometheus.Gauge
	inverterErr prometheus.Gauge

	polls         *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	recordFailure prometheus.Counter
}

// New creates the collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_watts",
			Help:      "Instantaneous AC power [W]",
		}),
		energyToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_today_watt_hours",
			Help:      "Energy generated today [Wh]",
		}),
		daylight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daylight",
			Help:      "1 while the sun is up at the configured location",
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the last parsed reading",
		}),
		inverterErr: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_error",
			Help:      "1 when the last reading reported status Error",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Inverter polls by result",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "PVOutput uploads by result",
		}, []string{"result"}),
		recordFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Readings that could not be written to the local database",
		}),
	}

	m.registry.MustRegister(
		m.power,
		m.energyToday,
		m.daylight,
		m.lastReading,
		m.inverterErr,
		m.polls,
		m.uploads,
		m.recordFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReading records the values of a parsed reading.
func (m *Metrics) ObserveReading(r types.Reading) {
	m.power.Set(float64(r.PowerWatts))
	m.energyToday.Set(float64(r.EnergyTodayWh))
	m.lastReading.Set(float64(r.Timestamp.Unix()))
	if r.IsError() {
		m.inverterErr.Set(1)
	} else {
		m.inverterErr.Set(0)
	}
}

// ObservePoll counts a poll. result is "ok" or the failure class.
func (m *Metrics) ObservePoll(result string) {
	m.polls.WithLabelValues(result).Inc()
}

// ObserveUpload counts an upload attempt.
func (m *Metrics) ObserveUpload(ok bool) {
	if ok {
		m.uploads.WithLabelValues("ok").Inc()
	} else {
		m.uploads.WithLabelValues("failed").Inc()
	}
}

// ObserveRecordFailure counts a failed write to the local database.
func (m *Metrics) ObserveRecordFailure() {
	m.recordFailure.Inc()
}

// SetDaylight records whether the sun is up. Power drops to zero overnight.
func (m *Metrics) SetDaylight(up bool) {
	if up {
		m.daylight.Set(1)
		return
	}
	m.daylight.Set(0)
	m.power.Set(0)
}
