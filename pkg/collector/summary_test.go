package collector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirocosta/purifier-exporter/pkg/collector"
)

func TestSummary(t *testing.T) {
	summary := collector.NewSummary(collector.WithQuantiles(
		map[float64]float64{0.5: 0.01, 1: 0.001},
	))

	for i := 1; i <= 100; i++ {
		summary.Insert(float64(i))
	}

	assert.Equal(t, uint64(100), summary.Count())
	assert.Equal(t, float64(5050), summary.Sum())

	quantiles := summary.Quantiles()
	assert.InDelta(t, 50, quantiles[0.5], 2)
	assert.InDelta(t, 100, quantiles[1], 2)

	// results are detached from the summary's state.
	quantiles[0.5] = -1
	assert.NotEqual(t, float64(-1), summary.Quantiles()[0.5])
}
