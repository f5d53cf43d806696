package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

const (
	defaultModel = shared.ResponsesModel("gpt-5.1")
	maxFields    = 400 // cap what we send to the model
)

var (
	// ErrMissingAPIKey is returned when OPENAI_API_KEY was not configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")
)

// FieldLabel is the model's answer for one PDF field.
type FieldLabel struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type labelResponse struct {
	Fields []FieldLabel `json:"fields"`
}

// FieldLabeler is a thin wrapper around the OpenAI responses client that turns
// raw AcroForm field names into labels.
type FieldLabeler struct {
	client *openai.Client
	model  shared.ResponsesModel
}

// NewFieldLabeler builds a labeler. httpClient may be nil.
func NewFieldLabeler(apiKey, model string, httpClient *http.Client) (*FieldLabeler, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(opts...)
	m := defaultModel
	if model != "" {
		m = shared.ResponsesModel(model)
	}
	return &FieldLabeler{client: &client, model: m}, nil
}

// LabelFields asks the model for labels of the given field names.
func (l *FieldLabeler) LabelFields(ctx context.Context, names []string) (map[string]FieldLabel, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("FieldLabeler is not initialized")
	}
	if len(names) == 0 {
		return map[string]FieldLabel{}, nil
	}

	resp, err := l.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: l.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(labelSystemPrompt, responses.EasyInputMessageRoleSystem),
				responses.ResponseInputItemParamOfMessage(buildPrompt(names), responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("call OpenAI: %w", err)
	}

	return ParseLabels(resp.OutputText(), names)
}

func buildPrompt(names []string) string {
	if len(names) > maxFields {
		names = names[:maxFields]
	}

	builder := strings.Builder{}
	builder.WriteString(labelUserPrompt)
	for _, n := range names {
		builder.WriteString(n)
		builder.WriteString("\n")
	}
	return builder.String()
}

// ParseLabels decodes the model output, tolerating a fenced code block, and
// keeps only labels for names that were asked for.
func ParseLabels(output string, names []string) (map[string]FieldLabel, error) {
	output = strings.TrimSpace(output)
	output = strings.TrimPrefix(output, "```json")
	output = strings.TrimPrefix(output, "```")
	output = strings.TrimSuffix(output, "```")
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, errors.New("model returned an empty response")
	}

	var parsed labelResponse
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	asked := make(map[string]bool, len(names))
	for _, n := range names {
		asked[n] = true
	}

	out := make(map[string]FieldLabel, len(parsed.Fields))
	for _, f := range parsed.Fields {
		if !asked[f.Name] || strings.TrimSpace(f.Label) == "" {
			continue
		}
		f.Label = strings.TrimSpace(f.Label)
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
		out[f.Name] = f
	}
	return out, nil
}
