package waterfall

import (
	"sort"

	"github.com/sells-group/opendate-cli/internal/model"
)

// ComputeMetrics aggregates results. It is a pure function of its input.
func ComputeMetrics(results []model.ResolvedDate) model.RunMetrics {
	m := model.RunMetrics{
		Total:     len(results),
		BySource:  make(map[string]int),
		ByTier:    make(map[model.Tier]int),
		TierShare: make(map[model.Tier]float64),
		Health:    make(map[string]model.SourceHealth),
	}

	var years []int
	for _, r := range results {
		for _, a := range r.Attempts {
			switch a.Outcome {
			case model.OutcomeError:
				h := m.Health[a.Source]
				h.Errors++
				m.Health[a.Source] = h
			case model.OutcomeSkipped:
				h := m.Health[a.Source]
				h.Skipped++
				m.Health[a.Source] = h
			}
		}
		if !r.Resolved() {
			continue
		}
		m.Resolved++
		m.BySource[r.Source]++
		m.ByTier[r.Tier]++
		years = append(years, r.Date.Year)

		d := *r.Date
		if m.Earliest == nil || d.Before(*m.Earliest) {
			m.Earliest = &d
		}
		if m.Latest == nil || m.Latest.Before(d) {
			latest := d
			m.Latest = &latest
		}
	}

	if m.Total > 0 {
		m.Coverage = float64(m.Resolved) / float64(m.Total)
	}
	if m.Resolved > 0 {
		for _, t := range []model.Tier{model.TierHigh, model.TierMedium, model.TierLow} {
			m.TierShare[t] = float64(m.ByTier[t]) / float64(m.Resolved)
		}
		sort.Ints(years)
		med := median(years)
		m.MedianYear = &med
	}

	for src := range m.Health {
		m.Degraded = append(m.Degraded, src)
	}
	sort.Strings(m.Degraded)
	return m
}

// median of sorted ints; even counts take the lower middle so the result is
// always an observed year.
func median(sorted []int) int {
	return sorted[(len(sorted)-1)/2]
}
