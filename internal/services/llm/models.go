package llm

import (
	"sort"
)

// Provider identifies a cloud LLM backend
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
)

// modelSpec binds a model id to its provider and per-million-token pricing
// in USD.
type modelSpec struct {
	provider      Provider
	inputPerMTok  float64
	outputPerMTok float64
}

// modelTable is the closed set of accepted model ids. A submission naming a
// model outside this set is rejected up front rather than passed through to
// a provider.
var modelTable = map[string]modelSpec{
	"claude-sonnet-4-20250514":  {ProviderClaude, 3.00, 15.00},
	"claude-haiku-3-5-20241022": {ProviderClaude, 0.80, 4.00},
	"gemini-3-flash-preview":    {ProviderGemini, 0.10, 0.40},
	"gemini-2.0-flash":          {ProviderGemini, 0.10, 0.40},
	"gemini-2.5-pro":            {ProviderGemini, 1.25, 10.00},
}

// SupportedModels lists the accepted model ids in stable order
func SupportedModels() []string {
	names := make([]string, 0, len(modelTable))
	for name := range modelTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// tokenUsage is a provider-agnostic token count for one call
type tokenUsage struct {
	inputTokens  int64
	outputTokens int64
}

// cost converts token usage to USD for the given model spec. The result is
// left unrounded; rounding happens once at the reporting boundary.
func (u tokenUsage) cost(spec modelSpec) float64 {
	return float64(u.inputTokens)/1_000_000*spec.inputPerMTok +
		float64(u.outputTokens)/1_000_000*spec.outputPerMTok
}
