package ai

import (
	"encoding/json"
	"os"
)

// Model metadata and simple pricing helpers for cost estimates.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	Provider      string  `json:",omitempty"`
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	// OpenAI direct
	"gpt-3.5-turbo": {
		Name:          "gpt-3.5-turbo",
		Provider:      ProviderOpenAI,
		ContextTokens: 16385,
		InputPerK:     0.0005,
		OutputPerK:    0.0015,
	},
	"gpt-4o-mini": {
		Name:          "gpt-4o-mini",
		Provider:      ProviderOpenAI,
		ContextTokens: 128000,
		InputPerK:     0.00015,
		OutputPerK:    0.0006,
	},
	"gpt-4o": {
		Name:          "gpt-4o",
		Provider:      ProviderOpenAI,
		ContextTokens: 128000,
		InputPerK:     0.0025,
		OutputPerK:    0.01,
	},
	"gpt-4.1-mini": {
		Name:          "gpt-4.1-mini",
		Provider:      ProviderOpenAI,
		ContextTokens: 1047576,
		InputPerK:     0.0004,
		OutputPerK:    0.0016,
	},
	// OpenRouter
	"openai/gpt-3.5-turbo": {
		Name:          "openai/gpt-3.5-turbo",
		Provider:      ProviderOpenRouter,
		ContextTokens: 16385,
		InputPerK:     0.0005,
		OutputPerK:    0.0015,
	},
	"openai/gpt-4o-mini": {
		Name:          "openai/gpt-4o-mini",
		Provider:      ProviderOpenRouter,
		ContextTokens: 128000,
		InputPerK:     0.00015,
		OutputPerK:    0.0006,
	},
	"anthropic/claude-3-haiku": {
		Name:          "anthropic/claude-3-haiku",
		Provider:      ProviderOpenRouter,
		ContextTokens: 200000,
		InputPerK:     0.00025,
		OutputPerK:    0.00125,
	},
	"google/gemini-1.5-flash": {
		Name:          "google/gemini-1.5-flash",
		Provider:      ProviderOpenRouter,
		ContextTokens: 1000000,
		InputPerK:     0.0002,
		OutputPerK:    0.0008,
	},
	"meta-llama/llama-3.1-8b-instruct": {
		Name:          "meta-llama/llama-3.1-8b-instruct",
		Provider:      ProviderOpenRouter,
		ContextTokens: 131072,
		InputPerK:     0.0,
		OutputPerK:    0.0,
	},
	"deepseek/deepseek-r1:free": {
		Name:          "deepseek/deepseek-r1:free",
		Provider:      ProviderOpenRouter,
		ContextTokens: 128000,
		InputPerK:     0.0,
		OutputPerK:    0.0,
	},
	// Common local (Ollama) tags
	"llama3:latest": {
		Name:          "llama3:latest",
		Provider:      ProviderOllama,
		ContextTokens: 8192,
	},
	"llama3.1:8b-instruct": {
		Name:          "llama3.1:8b-instruct",
		Provider:      ProviderOllama,
		ContextTokens: 8192,
	},
	"mistral:7b-instruct": {
		Name:          "mistral:7b-instruct",
		Provider:      ProviderOllama,
		ContextTokens: 8192,
	},
	"phi3:mini-4k-instruct": {
		Name:          "phi3:mini-4k-instruct",
		Provider:      ProviderOllama,
		ContextTokens: 4096,
	},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example JSON entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// OverrideCatalog replaces the in-memory catalog entirely.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	models = m
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
