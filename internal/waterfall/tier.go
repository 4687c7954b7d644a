package waterfall

import "github.com/sells-group/opendate-cli/internal/model"

var tiers = map[string]model.Tier{
	model.SourceKnowledgeGraph:      model.TierHigh,
	model.SourceBusinessRegistry:    model.TierHigh,
	model.SourcePlanningRegistry:    model.TierHigh,
	model.SourceTransactionRegistry: model.TierMedium,
	model.SourceCadastralAge:        model.TierMedium,
	model.SourceRefinementRegistry:  model.TierMedium,
	model.SourceHeritageRegistry:    model.TierMedium,
}

// TierOf returns the fixed reliability tier of a source. Sources outside the
// built-in set are low.
func TierOf(source string) model.Tier {
	if t, ok := tiers[source]; ok {
		return t
	}
	return model.TierLow
}
