package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/tributeguard/internal/schema"
)

// DefaultOpenAIURL is the OpenAI chat completions endpoint.
const DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIConfig holds parameters for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// OpenAI extracts through a chat completions endpoint that supports
// response_format json_schema (OpenAI, Groq, Ollama, vLLM).
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI creates an OpenAI-compatible extractor.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultOpenAIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Extract sends one chat completion constrained to call.Schema and returns
// the message content.
func (o *OpenAI) Extract(ctx context.Context, call Call) ([]byte, error) {
	schemaMap, err := schemaDocument(call)
	if err != nil {
		return nil, err
	}

	name := call.SchemaName
	if name == "" {
		name = schema.Name
	}

	body, err := json.Marshal(chatRequest{
		Model: call.Model,
		Messages: []chatMessage{
			{Role: "system", Content: call.System},
			{Role: "user", Content: call.Prompt},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   name,
				Strict: true,
				Schema: schemaMap,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("extraction HTTP %d: %w", resp.StatusCode, neurorouter.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction HTTP %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	msg := result.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, truncate(msg.Refusal, 200))
	}
	if result.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("completion truncated at token limit")
	}

	return []byte(msg.Content), nil
}

// schemaDocument renders call.Schema as a generic JSON object. The
// flaggedContent schema goes through schema.Map so strict providers see a
// literal additionalProperties: false.
func schemaDocument(call Call) (map[string]any, error) {
	if call.Schema == nil || call.Schema == schema.Schema() {
		return schema.Map()
	}
	data, err := json.Marshal(call.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return m, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
