package provider

import (
	"context"
	"time"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/pkg/textgen"
)

const polishSystemPrompt = "You are a knowledgeable Seoul local sharing honest, " +
	"culturally-aware recommendations. Prefer authentic spots over tourist traps. " +
	"Keep the answer short and concrete."

// TextGenProvider translates the language generation API to the
// uniform contract. Its payloads carry prose, not candidates.
type TextGenProvider struct {
	client    textgen.Client
	maxTokens int64
}

// TextGenOption configures the language-generation provider.
type TextGenOption func(*TextGenProvider)

// WithMaxTokens caps the generated summary length.
func WithMaxTokens(n int64) TextGenOption {
	return func(p *TextGenProvider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// NewTextGenProvider creates the language-generation provider.
func NewTextGenProvider(client textgen.Client, opts ...TextGenOption) *TextGenProvider {
	p := &TextGenProvider{client: client, maxTokens: 1024}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *TextGenProvider) Name() model.ProviderID { return model.ProviderTextGen }

// TTL is zero: generated prose is always query-specific and never
// cached.
func (p *TextGenProvider) TTL() time.Duration { return 0 }

func (p *TextGenProvider) CacheKey(req Request) string {
	return cache.Key(string(p.Name()), req.Prompt)
}

func (p *TextGenProvider) Fetch(ctx context.Context, req Request) (*Payload, error) {
	resp, err := p.client.Generate(ctx, textgen.GenerateRequest{
		MaxTokens: p.maxTokens,
		System:    polishSystemPrompt,
		Prompt:    req.Prompt,
	})
	if err != nil {
		return nil, err
	}
	return &Payload{Text: resp.Text}, nil
}
