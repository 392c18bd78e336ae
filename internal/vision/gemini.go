package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/nutrivision/internal/catalog"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is a [Hinter] backed by the Gemini GenerateContent API.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Hinter = (*Gemini)(nil)

// GeminiConfig selects the Gemini API or Vertex AI backend.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Ignored for Vertex AI,
	// which uses application default credentials.
	APIKey string

	// Model defaults to [DefaultGeminiModel].
	Model string

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// UseVertex switches to Vertex AI with Project and Location.
	UseVertex bool
	Project   string
	Location  string

	// HTTPClient is optional.
	HTTPClient *http.Client
}

// NewGemini creates a Gemini frame hinter.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	if cfg.UseVertex {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, errors.New("vision: gemini: vertex requires project and location")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		if cfg.APIKey == "" {
			return nil, errors.New("vision: gemini: api key must not be empty")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("vision: gemini: new client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Infer implements [Hinter].
func (g *Gemini) Infer(ctx context.Context, f Frame, domain catalog.Domain, lang string) (string, error) {
	if !f.IsImage() {
		return "", nil
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(userPrompt(domain, lang)),
			genai.NewPartFromBytes(f.Data, f.MIMEType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   MaxHintTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("vision: gemini: generate content: %w", err)
	}
	return Sanitize(responseText(resp)), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
