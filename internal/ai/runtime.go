package ai

import (
	"context"
	"strings"
)

// Runtime is a minimal interface implemented by language-model backends
// such as OpenAI, OpenRouter and local runtimes (Ollama).
// It aligns to the shared request/response types in this package.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// NormalizeProvider maps user spellings and aliases to a registered provider
// name. Unknown names are returned lower-cased.
func NormalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", ProviderOpenAI:
		return ProviderOpenAI
	case ProviderOpenRouter:
		return ProviderOpenRouter
	case ProviderOllama, ProviderLocal:
		return ProviderOllama
	default:
		return name
	}
}
