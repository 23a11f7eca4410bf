package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tfassist/internal/domain/entity"
	"tfassist/internal/infrastructure/metrics"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	lifecycle
	settings    Settings
	client      *http.Client
	logger      *slog.Logger
	temperature float64
}

func NewOpenAIGenerator(s Settings, logger *slog.Logger) *OpenAIGenerator {
	if s.BaseURL == "" {
		s.BaseURL = DefaultOpenAIBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 2 * time.Minute
	}
	return &OpenAIGenerator{
		settings:    s,
		client:      &http.Client{Timeout: s.Timeout},
		logger:      logger,
		temperature: 1,
	}
}

func (g *OpenAIGenerator) Load(ctx context.Context) error {
	if err := g.lifecycle.load(g.settings); err != nil {
		return fmt.Errorf("load openai generator: %w", err)
	}
	if g.settings.APIKey == "" {
		g.logger.Warn("openai backend has no api key configured")
	}
	g.logger.Info("generation backend ready", "backend", BackendOpenAI, "model", g.settings.Model, "url", g.settings.BaseURL)
	return nil
}

func (g *OpenAIGenerator) Close() error {
	g.lifecycle.close()
	g.client.CloseIdleConnections()
	return nil
}

func (g *OpenAIGenerator) Model() string   { return g.settings.Model }
func (g *OpenAIGenerator) Backend() string { return BackendOpenAI }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts entity.GenerationOptions) (string, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	if opts.NumReturnSequences <= 0 {
		opts.NumReturnSequences = 1
	}

	request := map[string]interface{}{
		"model": g.settings.Model,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"max_tokens":  opts.MaxLength,
		"n":           opts.NumReturnSequences,
		"temperature": g.temperature,
	}

	response, err := g.makeRequest(ctx, request)
	if err != nil {
		metrics.IncError("llm", "make_request")
		return "", fmt.Errorf("failed to make openai request: %w", err)
	}

	content, err := parseChatResponse(response)
	if err != nil {
		metrics.IncError("llm", "parse_response")
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}
	return content, nil
}

func (g *OpenAIGenerator) makeRequest(ctx context.Context, request map[string]interface{}) (map[string]interface{}, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.settings.BaseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if g.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.settings.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Warn("close body failed", "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return nil, fmt.Errorf("openai api error: %d - %s", resp.StatusCode, string(body))
	}

	var response map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		metrics.IncError("llm", "decode_response")
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response, nil
}

func parseChatResponse(response map[string]interface{}) (string, error) {
	choices, ok := response["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", fmt.Errorf("invalid response format: no choices")
	}

	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid response format: invalid choice")
	}

	message, ok := choice["message"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid response format: no message")
	}

	content, ok := message["content"].(string)
	if !ok {
		return "", fmt.Errorf("invalid response format: no content")
	}

	return content, nil
}
