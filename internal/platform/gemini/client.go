package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/ragbench/internal/config"
	"github.com/phrazzld/ragbench/internal/evaluation"
	"google.golang.org/genai"
)

// modelAPI is the part of genai.Models the client uses.
type modelAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
	EmbedContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.EmbedContentConfig,
	) (*genai.EmbedContentResponse, error)
}

// Client implements evaluation.ServiceClient using the Gemini API.
type Client struct {
	models         modelAPI
	answerModel    string
	embeddingModel string
	temperature    float32
	prompt         *promptTemplate
	logger         *slog.Logger
}

var (
	_ evaluation.ServiceClient = (*Client)(nil)
	_ evaluation.Describer     = (*Client)(nil)
)

// NewClient creates a Gemini client from configuration.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", evaluation.ErrInvalidConfig)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", evaluation.ErrInvalidConfig, err)
	}

	return newClient(gc.Models, cfg, logger)
}

func newClient(models modelAPI, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.AnswerModel == "" || cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: answer and embedding model names are required", evaluation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompt, err := loadPrompt(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		models:         models,
		answerModel:    cfg.AnswerModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		prompt:         prompt,
		logger:         logger.With(slog.String("component", "gemini_client")),
	}, nil
}

// Describe implements evaluation.Describer.
func (c *Client) Describe() map[string]string {
	return map[string]string{
		"answer_model":    c.answerModel,
		"embedding_model": c.embeddingModel,
		"prompt_version":  c.prompt.version,
	}
}

// answerSchema is the JSON object the prompt asks the model to return.
type answerSchema struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// GenerateAnswer implements evaluation.ServiceClient.
func (c *Client) GenerateAnswer(ctx context.Context, question string) (*evaluation.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	prompt, err := c.prompt.render(question)
	if err != nil {
		return nil, err
	}

	temperature := c.temperature
	resp, err := c.models.GenerateContent(ctx, c.answerModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, classify("generate answer", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	var parsed answerSchema
	if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: answer is not valid JSON: %v", evaluation.ErrInvalidResponse, err)
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return nil, fmt.Errorf("%w: answer field is empty", evaluation.ErrInvalidResponse)
	}
	if parsed.Citations == nil {
		parsed.Citations = []string{}
	}

	c.logger.DebugContext(ctx, "answer generated",
		slog.Int("answer_length", len(parsed.Answer)),
		slog.Int("citations", len(parsed.Citations)))

	return &evaluation.Answer{Text: parsed.Answer, Citations: parsed.Citations}, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", evaluation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", evaluation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", evaluation.ErrInvalidResponse)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response stopped by safety filter", evaluation.ErrContentBlocked)
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty candidate", evaluation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: empty text", evaluation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ScoreTextSimilarity implements evaluation.ServiceClient.
func (c *Client) ScoreTextSimilarity(ctx context.Context, a, b string) (float64, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 1, nil
	case a == "" || b == "":
		return 0, nil
	case a == b:
		return 1, nil
	}

	vectors, err := c.embed(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return cosine(vectors[0], vectors[1]), nil
}

// ScoreListSimilarity implements evaluation.ServiceClient.
func (c *Client) ScoreListSimilarity(ctx context.Context, a, b []string) (float64, error) {
	a, b = nonEmpty(a), nonEmpty(b)
	if len(a) == 0 || len(b) == 0 {
		return listSimilarity(make([][]float32, len(a)), make([][]float32, len(b))), nil
	}

	vectors, err := c.embed(ctx, append(append([]string{}, a...), b...))
	if err != nil {
		return 0, err
	}
	return listSimilarity(vectors[:len(a)], vectors[len(a):]), nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// embed returns one embedding per text, in order, from a single request.
func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	resp, err := c.models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, classify("embed content", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", evaluation.ErrInvalidResponse, len(texts), got)
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding %d", evaluation.ErrInvalidResponse, i)
		}
		out[i] = e.Values
	}
	return out, nil
}
