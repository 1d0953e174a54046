package extractor

import "context"

// LLMClient abstracts the text-generation service so providers and mocks
// are interchangeable.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider-independent configuration handed to
// concrete clients.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Project and Region are only read by the Vertex AI client.
	Project string
	Region  string
}
