package collector

import "github.com/beorn7/perks/quantile"

// defaultQuantiles is the default quantiles to compute for a given data stream
// that we want to summarize.
//
// these (quantile -> epsilon) will be used by default by any Summary unless
// initialized with the `WithQuantiles` option to override it.
//
var defaultQuantiles = map[float64]float64{
	0.50: 0.05,
	0.90: 0.01,
	0.99: 0.001,
}

// Summary keeps count, sum and targeted quantiles of a stream of
// observations. It is not safe for concurrent use.
//
type Summary struct {
	count   uint64
	sum     float64
	targets map[float64]float64

	stream *quantile.Stream
}

type SummaryOption func(s *Summary)

func WithQuantiles(v map[float64]float64) SummaryOption {
	return func(s *Summary) {
		s.targets = v
	}
}

func NewSummary(opts ...SummaryOption) *Summary {
	summary := &Summary{
		targets: cloneMap(defaultQuantiles),
	}

	for _, opt := range opts {
		opt(summary)
	}

	summary.stream = quantile.NewTargeted(summary.targets)

	return summary
}

func (s *Summary) Insert(v float64) {
	s.sum += v
	s.stream.Insert(v)
	s.count++
}

func (s *Summary) Count() uint64 {
	return s.count
}

// Quantiles computes the current value of each targeted quantile. The map is
// freshly allocated at every call.
//
func (s *Summary) Quantiles() map[float64]float64 {
	res := make(map[float64]float64, len(s.targets))
	for phi := range s.targets {
		res[phi] = s.stream.Query(phi)
	}

	return res
}

func (s *Summary) Sum() float64 {
	return s.sum
}

func cloneMap(o map[float64]float64) map[float64]float64 {
	m := make(map[float64]float64, len(o))
	for k, v := range o {
		m[k] = v
	}

	return m
}
