package model

// SourceHealth counts failures of one source over a run.
type SourceHealth struct {
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

// RunMetrics aggregates a batch. It is always derived from results.
type RunMetrics struct {
	Total      int                     `json:"total"`
	Resolved   int                     `json:"resolved"`
	Coverage   float64                 `json:"coverage"`
	BySource   map[string]int          `json:"by_source"`
	ByTier     map[Tier]int            `json:"by_tier"`
	TierShare  map[Tier]float64        `json:"tier_share"`
	Earliest   *PartialDate            `json:"earliest,omitempty"`
	Latest     *PartialDate            `json:"latest,omitempty"`
	MedianYear *int                    `json:"median_year,omitempty"`
	Health     map[string]SourceHealth `json:"health,omitempty"`
	// Degraded lists sources that failed or were skipped at least once.
	Degraded []string `json:"degraded,omitempty"`
}
