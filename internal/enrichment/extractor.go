// Package enrichment turns scraped profile text into structured contact fields with a
// generative model and merges them into a contact without overwriting anything.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ErrNoAPIKey is returned when the extractor is built without credentials.
var ErrNoAPIKey = errors.New("enrichment: llm.api_key is not configured")

// Extractor produces structured fields from raw profile text.
type Extractor interface {
	Extract(ctx context.Context, raw *schemas.RawProfileData) (*schemas.ParsedProfileData, error)
}

// generator is the subset of *genai.Models the extractor calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

const maxAttempts = 3

// profileSchema constrains the model to the ParsedProfileData shape.
var profileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"company":    {Type: genai.TypeString, Description: "Current employer, empty if unknown"},
		"title":      {Type: genai.TypeString, Description: "Current job title, empty if unknown"},
		"location":   {Type: genai.TypeString, Description: "City and country, empty if unknown"},
		"headline":   {Type: genai.TypeString, Description: "One line professional summary"},
		"website":    {Type: genai.TypeString, Description: "Personal or company website URL"},
		"skills":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Up to ten skills or topics"},
		"confidence": {Type: genai.TypeNumber, Description: "Confidence in the extraction from 0.0 to 1.0"},
	},
	Required: []string{"confidence"},
}

// GenAIExtractor calls a Gemini model with schema-constrained JSON output.
type GenAIExtractor struct {
	models  generator
	cfg     config.LLMConfig
	logger  *zap.Logger
	backoff time.Duration
}

// NewGenAIExtractor creates an extractor backed by the Gemini API.
func NewGenAIExtractor(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return newGenAIExtractor(client.Models, cfg, logger), nil
}

func newGenAIExtractor(models generator, cfg config.LLMConfig, logger *zap.Logger) *GenAIExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &GenAIExtractor{models: models, cfg: cfg, logger: logger.Named("enrichment"), backoff: time.Second}
}

// Extract sends the raw profile to the model and parses its JSON answer.
func (e *GenAIExtractor) Extract(ctx context.Context, raw *schemas.RawProfileData) (*schemas.ParsedProfileData, error) {
	if raw == nil {
		return nil, errors.New("enrichment: raw profile is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(e.cfg.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   profileSchema,
	}
	contents := []*genai.Content{genai.NewContentFromText(buildPrompt(raw), genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err = e.models.GenerateContent(ctx, e.cfg.Model, contents, genCfg)
		if err == nil {
			break
		}
		e.logger.Warn("Profile extraction call failed.", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("profile extraction cancelled: %w", ctx.Err())
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("profile extraction failed after %d attempts (model: %s): %w", maxAttempts, e.cfg.Model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("profile extraction returned no candidates")
	}
	return parseResponse(resp.Text())
}

func parseResponse(text string) (*schemas.ParsedProfileData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("profile extraction returned an empty response")
	}

	var parsed schemas.ParsedProfileData
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	parsed.Company = strings.TrimSpace(parsed.Company)
	parsed.Title = strings.TrimSpace(parsed.Title)
	parsed.Location = strings.TrimSpace(parsed.Location)
	parsed.Headline = strings.TrimSpace(parsed.Headline)
	parsed.Website = strings.TrimSpace(parsed.Website)
	parsed.Skills = dedupe(parsed.Skills)
	switch {
	case parsed.Confidence < 0:
		parsed.Confidence = 0
	case parsed.Confidence > 1:
		parsed.Confidence = 1
	}
	return &parsed, nil
}

func buildPrompt(raw *schemas.RawProfileData) string {
	var b strings.Builder
	b.WriteString("Extract structured contact details from this social profile. ")
	b.WriteString("Use only facts stated in the text. Leave a field empty rather than guess.\n\n")
	field := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}
	field("Platform", string(raw.Platform))
	field("Name", raw.Name)
	field("Headline", raw.Headline)
	field("Bio", raw.Bio)
	field("Location", raw.Location)
	field("Website", raw.Website)
	field("Pinned post", raw.PinnedContent)
	for i, post := range raw.RecentPosts {
		field(fmt.Sprintf("Recent post %d", i+1), post)
	}
	return b.String()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
