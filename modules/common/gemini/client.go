package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/logger"
)

// ContentGenerator - the one genai call this package needs (client.Models satisfies it)
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client - Gemini client built once at startup and shared by every request
type Client struct {
	models ContentGenerator
	model  string
	policy Policy
}

// CallOption - per-call adjustment of the retry policy
type CallOption func(*Policy)

// OnRetry - observe retries of a single call
func OnRetry(fn func(attempt int, delay time.Duration, err error)) CallOption {
	return func(p *Policy) {
		p.OnRetry = fn
	}
}

// NewClient - create the genai client with the API key
func NewClient(ctx context.Context, apiKey, model string, policy Policy) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.WithField("model", model).Info("✅ [Gemini] Client initialized")
	return NewClientWithGenerator(client.Models, model, policy), nil
}

// NewClientWithGenerator - build a Client over any generator (used by tests)
func NewClientWithGenerator(models ContentGenerator, model string, policy Policy) *Client {
	return &Client{models: models, model: model, policy: policy}
}

// Model - configured model name
func (c *Client) Model() string {
	return c.model
}

func (c *Client) policyFor(opts []CallOption) Policy {
	p := c.policy
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// DecodeImage - ask for count prompts, suggestions and detected texts for an image.
// Returns the raw JSON text; parsing is left to the caller.
func (c *Client) DecodeImage(ctx context.Context, image []byte, mimeType string, count int, opts ...CallOption) ([]byte, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(decodeInstruction(count)),
		},
	}}

	config := &genai.GenerateContentConfig{
		Temperature:      float32Ptr(0.65),
		TopK:             float32Ptr(40),
		TopP:             float32Ptr(0.90),
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema(),
	}

	logger.WithFields(logrus.Fields{
		"model":     c.model,
		"mime_type": mimeType,
		"bytes":     len(image),
		"count":     count,
	}).Info("🎨 [Gemini] Decoding image")

	text, err := c.generate(ctx, contents, config, opts)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// OptimizePrompt - rewrite one prompt to a 10/10 version. Returns raw JSON {text, score}.
func (c *Client) OptimizePrompt(ctx context.Context, original string, opts ...CallOption) ([]byte, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{genai.NewPartFromText(optimizeInstruction(original))},
	}}

	config := &genai.GenerateContentConfig{
		Temperature:      float32Ptr(0.7),
		ResponseMIMEType: "application/json",
		ResponseSchema:   promptItemSchema(),
	}

	text, err := c.generate(ctx, contents, config, opts)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// TranslateText - translate free text to en or vi. An empty answer returns the input.
func (c *Client) TranslateText(ctx context.Context, text, targetLang string, opts ...CallOption) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{genai.NewPartFromText(translateInstruction(text, targetLang))},
	}}

	config := &genai.GenerateContentConfig{
		Temperature:      float32Ptr(0.3),
		ResponseMIMEType: "text/plain",
	}

	translated, err := c.generate(ctx, contents, config, opts)
	if err != nil {
		if apperror.IsType(err, apperror.TypeMalformedResponse) {
			return text, nil
		}
		return "", err
	}

	translated = strings.TrimSpace(translated)
	if translated == "" {
		return text, nil
	}
	return translated, nil
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, opts []CallOption) (string, error) {
	resp, err := Invoke(ctx, c.policyFor(opts), func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.models.GenerateContent(ctx, c.model, contents, config)
	})
	if err != nil {
		return "", err
	}

	if blocked := blockReason(resp); blocked != "" {
		return "", &apperror.RemoteError{
			Class: apperror.Permanent,
			Err:   fmt.Errorf("response blocked by safety filter: %s", blocked),
		}
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", apperror.NewMalformedResponseError("model returned no content", nil)
	}
	return text, nil
}

// responseText - concatenate text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// blockReason - non-empty when the prompt or the first candidate was stopped for safety
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		switch reason := string(resp.Candidates[0].FinishReason); reason {
		case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "IMAGE_SAFETY":
			return reason
		}
	}
	return ""
}

func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"prompts": {
				Type:  genai.TypeArray,
				Items: promptItemSchema(),
			},
			"detectedTexts": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "List of exact text strings visible in the image",
			},
			"suggestions": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"prompts", "suggestions"},
	}
}

func promptItemSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text":  {Type: genai.TypeString},
			"score": {Type: genai.TypeNumber, Description: "Rating 1-10"},
		},
		Required: []string{"text", "score"},
	}
}

func float32Ptr(f float32) *float32 {
	return &f
}
