package vecindex

import (
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbeddingFunc computes the embedding vector for a text.
type EmbeddingFunc = chromem.EmbeddingFunc

// NewEmbeddingFunc builds the embedding capability from configuration.
// The computation itself is external: Ollama or OpenAI via chromem's
// built-in funcs.
func NewEmbeddingFunc(provider, model, baseURL string) (EmbeddingFunc, error) {
	switch provider {
	case ProviderOllama:
		if baseURL == "" {
			baseURL = "http://localhost:11434/api"
		}
		return chromem.NewEmbeddingFuncOllama(model, baseURL), nil
	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("vecindex: OPENAI_API_KEY is not set")
		}
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), nil
	default:
		return nil, fmt.Errorf("vecindex: unknown embedding provider %q", provider)
	}
}
