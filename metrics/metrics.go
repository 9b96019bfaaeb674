// Package metrics exposes Prometheus counters and gauges for risk
// decisions, order placement and portfolio state.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanHuYY/Stockbot/risk"
)

const namespace = "stockbot"

// Recorder owns its registry so parallel backtests and tests never share
// series. A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg *prometheus.Registry

	assessments *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	trades      *prometheus.CounterVec
	tradePL     prometheus.Histogram
	placements  *prometheus.CounterVec
	placeTime   prometheus.Histogram

	equity        prometheus.Gauge
	atRisk        prometheus.Gauge
	dailyPnLPct   prometheus.Gauge
	openPositions prometheus.Gauge
}

func New() *Recorder {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments by deciding check.",
		}, []string{"code"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_outcomes_total",
			Help:      "Journaled decisions by outcome.",
		}, []string{"outcome"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_closed_total",
			Help:      "Closed trades by exit reason.",
		}, []string{"reason"}),
		tradePL: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_realized_pl",
			Help:      "Realized P&L per closed trade, net of commission.",
			Buckets:   []float64{-5000, -1000, -500, -100, 0, 100, 500, 1000, 5000},
		}),
		placements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_placements_total",
			Help:      "Order placement attempts by result.",
		}, []string{"result"}),
		placeTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_placement_seconds",
			Help:      "Latency of guarded order placement.",
			Buckets:   prometheus.DefBuckets,
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_equity",
			Help:      "Current portfolio equity.",
		}),
		atRisk: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_at_risk",
			Help:      "Capital at risk across open positions.",
		}),
		dailyPnLPct: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_daily_pnl_ratio",
			Help:      "Equity change since the daily baseline, as a fraction.",
		}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_open_positions",
			Help:      "Number of open positions.",
		}),
	}
}

// WithProcessCollectors adds the Go runtime and process collectors. Only
// long-running commands want these.
func (r *Recorder) WithProcessCollectors() *Recorder {
	if r == nil {
		return nil
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) ObserveAssessment(a risk.Assessment) {
	if r == nil {
		return
	}
	code := a.Code
	if code == "" {
		code = risk.CodeInvalidCandidate
	}
	r.assessments.WithLabelValues(string(code)).Inc()
}

func (r *Recorder) ObserveOutcome(outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveTrade(reason string, realizedPL float64) {
	if r == nil {
		return
	}
	r.trades.WithLabelValues(reason).Inc()
	r.tradePL.Observe(realizedPL)
}

// ObservePlacement records one guarded placement. result is "ok" or an
// error class such as "timeout".
func (r *Recorder) ObservePlacement(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.placements.WithLabelValues(result).Inc()
	r.placeTime.Observe(d.Seconds())
}

func (r *Recorder) ObservePortfolio(equity, atRisk, dailyPnLPct float64, open int) {
	if r == nil {
		return
	}
	r.equity.Set(equity)
	r.atRisk.Set(atRisk)
	r.dailyPnLPct.Set(dailyPnLPct)
	r.openPositions.Set(float64(open))
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
