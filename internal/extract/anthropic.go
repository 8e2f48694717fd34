package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/model"
	"github.com/sells-group/place-enrich/pkg/anthropic"
)

const systemPrompt = `You extract structured company information from the text of a Brazilian business website.
Respond with a single JSON object that conforms to this JSON schema:

%s

Rules:
- Output JSON only, with no commentary and no code fences.
- Use null for fields the text does not support. Do not guess.
- Keep text values in the language of the website.`

// ResponseError is a reply that is not a usable JSON document.
type ResponseError struct {
	Reason string
	Raw    string
}

func (e *ResponseError) Error() string {
	return "extract: malformed response: " + e.Reason
}

// AnthropicExtractor implements Extractor with the Messages API.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	calc      *cost.Calculator
}

// NewAnthropicExtractor creates an AnthropicExtractor.
func NewAnthropicExtractor(client anthropic.Client, model string, maxTokens int64, calc *cost.Calculator) *AnthropicExtractor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicExtractor{client: client, model: model, maxTokens: maxTokens, calc: calc}
}

// Extract sends text with the schema embedded in the system prompt and
// returns the validated JSON object.
func (e *AnthropicExtractor) Extract(ctx context.Context, text string, schema json.RawMessage) (json.RawMessage, *model.TokenUsage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, &ResponseError{Reason: "no text to extract from"}
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System: []anthropic.SystemBlock{{
			Text: fmt.Sprintf(systemPrompt, schema),
			// The prompt only varies with the schema, so it is shared across companies.
			CacheControl: &anthropic.CacheControl{},
		}},
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, nil, &model.ProviderError{Provider: "anthropic", Scope: model.ScopeItem, Err: err}
	}

	usage := &model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	if e.calc != nil {
		usage.Cost = e.calc.Claude(e.model, usage.InputTokens, usage.OutputTokens)
	}
	zap.L().Info("extract: cost attribution",
		zap.String("model", e.model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Int64("cache_read_tokens", resp.Usage.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", usage.Cost),
	)

	if resp.StopReason == "max_tokens" {
		return nil, usage, &ResponseError{Reason: "response truncated at max tokens", Raw: resp.Text()}
	}

	doc, err := parseDocument(resp.Text(), requiredKeys(schema))
	if err != nil {
		return nil, usage, err
	}
	return doc, usage, nil
}

// parseDocument strips code fences and surrounding prose, then checks that
// what remains is a JSON object carrying every required key.
func parseDocument(raw string, required []string) (json.RawMessage, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, &ResponseError{Reason: "no JSON object in response", Raw: raw}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, &ResponseError{Reason: "invalid JSON: " + err.Error(), Raw: raw}
	}

	var missing []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &ResponseError{Reason: "missing required keys: " + strings.Join(missing, ", "), Raw: raw}
	}
	return json.RawMessage(cleaned), nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if i := strings.LastIndex(rest, "```"); i >= 0 {
			rest = rest[:i]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
