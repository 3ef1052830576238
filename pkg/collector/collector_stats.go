package collector

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollStats implements the prometheus Collector interface, exposing the
// distribution of how long device fetches take.
//
// Observations come from the poller while collection happens at scrape
// time, so access to the per-device summaries is serialized.
//
type PollStats struct {
	desc *prometheus.Desc

	mu        sync.Mutex
	summaries map[string]*Summary
}

// ensure that we implement prometheus' collector interface.
//
var _ prometheus.Collector = &PollStats{}

func NewPollStats() *PollStats {
	return &PollStats{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "fetch_duration_seconds"),
			"distribution of how long it takes to fetch a "+
				"device's telemetry",
			[]string{NameLabel}, nil,
		),
		summaries: map[string]*Summary{},
	}
}

// Observe records that fetching from device `name` took `took`.
//
func (s *PollStats) Observe(name string, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.summaries[name]
	if !ok {
		summary = NewSummary()
		s.summaries[name] = summary
	}

	summary.Insert(took.Seconds())
}

// Describe implements the Describe function of the Collector interface.
//
func (s *PollStats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.desc
}

// Collect implements the Collect function of the Collector interface.
//
func (s *PollStats) Collect(ch chan<- prometheus.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.summaries))
	for name := range s.summaries {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		summary := s.summaries[name]

		ch <- prometheus.MustNewConstSummary(
			s.desc,
			summary.Count(), summary.Sum(), summary.Quantiles(),
			name,
		)
	}
}
