package ai

// builtinModels is the catalog as shipped, unaffected by later overrides.
var builtinModels = Catalog()

// PresetCatalog returns the built-in catalog entries for a known provider.
// The result can be merged into or used to replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	p := NormalizeProvider(provider)
	if _, ok := registry[p]; !ok {
		return nil, false
	}
	out := map[string]ModelInfo{}
	for k, v := range builtinModels {
		if v.Provider == p {
			out[k] = v
		}
	}
	return out, len(out) > 0
}

// DefaultModel returns the model used when none is configured for a provider.
func DefaultModel(provider string) string {
	switch NormalizeProvider(provider) {
	case ProviderOpenRouter:
		return "openai/gpt-3.5-turbo"
	case ProviderOllama:
		return "llama3:latest"
	default:
		return "gpt-3.5-turbo"
	}
}
