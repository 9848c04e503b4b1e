package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AarC10/ubxlib-dev/cell"
)

// Refresh outcome labels for the refresh counter.
const (
	outcomeOK            = "ok"
	outcomeNotRegistered = "not_registered"
	outcomeATError       = "at_error"
	outcomeError         = "error"
)

// Collector bundles the Prometheus metrics exported by the daemon.
type Collector struct {
	gatherer prometheus.Gatherer

	Refreshes *prometheus.CounterVec

	RssiDbm prometheus.Gauge
	RsrpDbm prometheus.Gauge
	RsrqDb  prometheus.Gauge
	SnrDb   prometheus.Gauge
	RxQual  prometheus.Gauge
}

// NewCollector registers the daemon's metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cell_refreshes_total",
		Help: "Total number of radio parameter refreshes, labeled by outcome.",
	}, []string{"outcome"})
	refreshes, err := registerCounterVec(reg, refreshes, "cell_refreshes_total")
	if err != nil {
		return nil, err
	}

	rssi, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cell_rssi_dbm",
		Help: "Received signal strength in dBm from the last refresh.",
	}), "cell_rssi_dbm")
	if err != nil {
		return nil, err
	}
	rsrp, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cell_rsrp_dbm",
		Help: "Reference signal received power in dBm from the last refresh.",
	}), "cell_rsrp_dbm")
	if err != nil {
		return nil, err
	}
	rsrq, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cell_rsrq_db",
		Help: "Reference signal received quality in dB from the last refresh.",
	}), "cell_rsrq_db")
	if err != nil {
		return nil, err
	}
	snr, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cell_snr_db",
		Help: "Signal to noise ratio in dB derived from the last refresh.",
	}), "cell_snr_db")
	if err != nil {
		return nil, err
	}
	rxQual, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cell_rxqual",
		Help: "GSM RxQual from the last refresh, -1 when not reported.",
	}), "cell_rxqual")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:  gatherer,
		Refreshes: refreshes,
		RssiDbm:   rssi,
		RsrpDbm:   rsrp,
		RsrqDb:    rsrq,
		SnrDb:     snr,
		RxQual:    rxQual,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRefresh records the outcome of a refresh attempt.
func (c *Collector) ObserveRefresh(outcome string) {
	if c == nil || c.Refreshes == nil {
		return
	}
	c.Refreshes.WithLabelValues(outcome).Inc()
}

// ObserveRadio publishes the latest radio parameters. SNR is only updated
// when it could be derived from the current measurement.
func (c *Collector) ObserveRadio(p cell.RadioParameters, snrDb int, snrOK bool) {
	if c == nil {
		return
	}
	if c.RssiDbm != nil {
		c.RssiDbm.Set(float64(p.RssiDbm))
	}
	if c.RsrpDbm != nil {
		c.RsrpDbm.Set(float64(p.RsrpDbm))
	}
	if c.RsrqDb != nil {
		c.RsrqDb.Set(float64(p.RsrqDb))
	}
	if c.RxQual != nil {
		c.RxQual.Set(float64(p.RxQual))
	}
	if snrOK && c.SnrDb != nil {
		c.SnrDb.Set(float64(snrDb))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
