package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecastsServed  *prometheus.CounterVec
	trainingRuns     *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecastsServed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_forecasts_served_total",
				Help: "Forecasts returned, by symbol and model path",
			},
			[]string{"symbol", "model_used"},
		),
		trainingRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_training_runs_total",
				Help: "Completed training runs by result",
			},
			[]string{"symbol", "result"},
		),
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_training_duration_seconds",
				Help:    "Wall time of a single training run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_last_price",
				Help: "Last observed close for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordForecast counts a served forecast.
func (r *Recorder) RecordForecast(symbol, modelUsed string) {
	r.forecastsServed.WithLabelValues(symbol, modelUsed).Inc()
}

// RecordTraining counts a training run and observes its duration.
func (r *Recorder) RecordTraining(symbol, result string, d time.Duration) {
	r.trainingRuns.WithLabelValues(symbol, result).Inc()
	r.trainingDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}
