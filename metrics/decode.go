package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decode Prometheus metrics.
var (
	DecodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "postag",
			Name:      "decode_duration_seconds",
			Help:      "Viterbi decode duration per sentence in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"outcome"},
	)

	DecodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "postag",
			Name:      "decodes_total",
			Help:      "Total number of decoded sentences",
		},
		[]string{"outcome"}, // ok, fallback, infeasible, error
	)

	DecodeTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "postag",
			Name:      "decode_tokens_total",
			Help:      "Total number of tokens submitted for decoding",
		},
	)
)

var registerDecode sync.Once

// RegisterDecodeMetrics registers the decode metrics with the default registry.
// Safe to call more than once.
func RegisterDecodeMetrics() {
	registerDecode.Do(func() {
		prometheus.MustRegister(DecodeDuration)
		prometheus.MustRegister(DecodesTotal)
		prometheus.MustRegister(DecodeTokensTotal)
	})
}

// DecodeObserver feeds tagger decode notifications into the decode metrics.
type DecodeObserver struct{}

// ObserveDecode records one decoded sentence.
func (DecodeObserver) ObserveDecode(tokens int, elapsed time.Duration, outcome string) {
	DecodeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	DecodesTotal.WithLabelValues(outcome).Inc()
	DecodeTokensTotal.Add(float64(tokens))
}
