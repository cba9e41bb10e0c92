package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"content-eval/internal/model"
)

// GoogleProvider 通过 genai SDK 调用 Gemini
type GoogleProvider struct {
	client *genai.Client
}

func NewGoogleProvider(ctx context.Context, apiKey, baseURL string) (*GoogleProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

func (p *GoogleProvider) Name() model.Provider {
	return model.ProviderGoogle
}

func (p *GoogleProvider) Complete(ctx context.Context, modelName, prompt string, params Params) (*Completion, error) {
	resp, err := p.client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(params.Temperature)),
		MaxOutputTokens: int32(params.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	content := resp.Text()
	if content == "" {
		return nil, fmt.Errorf("google: %w", ErrEmptyResponse)
	}

	out := &Completion{Content: content}
	if u := resp.UsageMetadata; u != nil && u.PromptTokenCount > 0 {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	} else {
		out.PromptTokens = estimateTokens(prompt)
		out.CompletionTokens = estimateTokens(content)
	}
	return out, nil
}
