package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WriteSnapshot gathers g and writes every family whose name starts with
// prefix in the Prometheus text exposition format. An empty prefix writes
// everything.
func WriteSnapshot(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := gatherPrefixed(g, prefix)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Totals gathers g and returns, per family name with the given prefix, the
// sum of all counter and gauge samples. Histograms contribute their sample
// count. Used for the final log line.
func Totals(g prometheus.Gatherer, prefix string) (map[string]float64, error) {
	families, err := gatherPrefixed(g, prefix)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += sampleValue(mf.GetType(), m)
		}
		totals[mf.GetName()] = sum
	}
	return totals, nil
}

func gatherPrefixed(g prometheus.Gatherer, prefix string) ([]*dto.MetricFamily, error) {
	all, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	families := make([]*dto.MetricFamily, 0, len(all))
	for _, mf := range all {
		if strings.HasPrefix(mf.GetName(), prefix) {
			families = append(families, mf)
		}
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	return families, nil
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount())
	case dto.MetricType_SUMMARY:
		return float64(m.GetSummary().GetSampleCount())
	default:
		return m.GetUntyped().GetValue()
	}
}
