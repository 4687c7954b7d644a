package model

// Source identifiers. These strings appear in priority configuration, output
// columns and the audit table, so they must stay stable.
const (
	SourceKnowledgeGraph      = "knowledge_graph"
	SourceBusinessRegistry    = "business_registry"
	SourcePlanningRegistry    = "planning_registry"
	SourceTransactionRegistry = "transaction_registry"
	SourceCadastralAge        = "cadastral_age"
	SourceRefinementRegistry  = "refinement_registry"
	SourceHeritageRegistry    = "heritage_registry"
)

// DefaultPriority orders sources by decreasing reliability.
var DefaultPriority = []string{
	SourceKnowledgeGraph,
	SourceBusinessRegistry,
	SourcePlanningRegistry,
	SourceTransactionRegistry,
	SourceCadastralAge,
	SourceRefinementRegistry,
	SourceHeritageRegistry,
}

// KnownSource reports whether name is one of the built-in source identifiers.
func KnownSource(name string) bool {
	for _, s := range DefaultPriority {
		if s == name {
			return true
		}
	}
	return false
}
