package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

// VertexLLM implements LLMClient on Vertex AI using application default
// credentials.
type VertexLLM struct {
	Model  string
	client *vertexgenai.Client
}

func NewVertexLLM(ctx context.Context, cfg *LLMSettings) (*VertexLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.Project == "" || cfg.Region == "" {
		return nil, errors.New("vertex provider requires llm.project and llm.region")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := vertexgenai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexLLM{Model: model, client: client}, nil
}

func (v *VertexLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := v.client.GenerativeModel(v.Model)
	if prompt.System != "" {
		model.SystemInstruction = &vertexgenai.Content{
			Parts: []vertexgenai.Part{vertexgenai.Text(prompt.System)},
		}
	}
	model.SetTemperature(float32(prompt.Temperature))
	if prompt.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(prompt.MaxTokens))
	}
	if prompt.JSON {
		model.ResponseMIMEType = "application/json"
	}

	chat := model.StartChat()
	for _, h := range prompt.History {
		role := "user"
		if h.Role == "assistant" {
			role = "model"
		}
		chat.History = append(chat.History, &vertexgenai.Content{
			Role:  role,
			Parts: []vertexgenai.Part{vertexgenai.Text(h.Content)},
		})
	}

	resp, err := chat.SendMessage(ctx, vertexgenai.Text(prompt.User))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("vertex: empty candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(vertexgenai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying gRPC connection.
func (v *VertexLLM) Close() error {
	return v.client.Close()
}
