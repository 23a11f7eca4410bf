package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tfassist/internal/domain/entity"
	"tfassist/internal/infrastructure/metrics"
)

const DefaultHFBaseURL = "https://api-inference.huggingface.co/models"

// HFGenerator talks to a Hugging Face text-generation endpoint, either the
// hosted Inference API or a text-generation-inference server.
type HFGenerator struct {
	lifecycle
	settings Settings
	client   *http.Client
	logger   *slog.Logger
}

func NewHFGenerator(s Settings, logger *slog.Logger) *HFGenerator {
	if s.BaseURL == "" {
		s.BaseURL = DefaultHFBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 2 * time.Minute
	}
	return &HFGenerator{
		settings: s,
		client:   &http.Client{Timeout: s.Timeout},
		logger:   logger,
	}
}

func (g *HFGenerator) Load(ctx context.Context) error {
	if err := g.lifecycle.load(g.settings); err != nil {
		return fmt.Errorf("load hf generator: %w", err)
	}
	g.logger.Info("generation backend ready", "backend", BackendHF, "model", g.settings.Model, "url", g.endpoint())
	return nil
}

func (g *HFGenerator) Close() error {
	g.lifecycle.close()
	g.client.CloseIdleConnections()
	return nil
}

func (g *HFGenerator) Model() string   { return g.settings.Model }
func (g *HFGenerator) Backend() string { return BackendHF }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens       int  `json:"max_new_tokens"`
	NumReturnSequences int  `json:"num_return_sequences"`
	ReturnFullText     bool `json:"return_full_text"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

func (g *HFGenerator) Generate(ctx context.Context, prompt string, opts entity.GenerationOptions) (string, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	if opts.NumReturnSequences <= 0 {
		opts.NumReturnSequences = 1
	}

	body, err := json.Marshal(hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:       opts.MaxLength,
			NumReturnSequences: opts.NumReturnSequences,
			ReturnFullText:     true,
		},
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.settings.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Warn("close body failed", "err", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncError("llm", "read_body")
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return "", fmt.Errorf("hf api error: %d - %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return parseHFResponse(raw)
}

func (g *HFGenerator) endpoint() string {
	return strings.TrimRight(g.settings.BaseURL, "/") + "/" + g.settings.Model
}

// parseHFResponse accepts the Inference API list form and the single-object
// form returned by text-generation-inference.
func parseHFResponse(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("invalid response format: empty body")
	}

	if trimmed[0] == '[' {
		var list []hfGeneration
		if err := json.Unmarshal(trimmed, &list); err != nil {
			metrics.IncError("llm", "decode_response")
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("invalid response format: no generations")
		}
		return list[0].GeneratedText, nil
	}

	var single struct {
		hfGeneration
		Error string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &single); err != nil {
		metrics.IncError("llm", "decode_response")
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("hf api error: %s", single.Error)
	}
	return single.GeneratedText, nil
}
