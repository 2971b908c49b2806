package ai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/myrjola/liftguard/internal/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = openai.ChatModelGPT4o
	// maxExercises bounds the exercise list in the response schema.
	maxExercises = 10
)

// OpenAIConfig configures [OpenAIClient].
type OpenAIConfig struct {
	APIKey string
	// Model defaults to [DefaultModel].
	Model string
	// BaseURL overrides the API endpoint, used by tests and compatible gateways.
	BaseURL string
}

// OpenAIClient asks an OpenAI chat model for a plan using structured outputs.
//
// The SDK's own retries are disabled because [Generator] owns the retry policy.
type OpenAIClient struct {
	client openai.Client
	model  openai.ChatModel
	logger *slog.Logger
}

// NewOpenAIClient creates a client from cfg.
func NewOpenAIClient(logger *slog.Logger, cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Suggest sends prompt and returns the raw JSON content of the first choice.
func (c *OpenAIClient) Suggest(ctx context.Context, prompt Prompt) (string, error) {
	schema, err := jsonSchemaValue(planJSONSchema{maxExercises: maxExercises})
	if err != nil {
		return "", errors.Wrap(err, "build response schema")
	}

	chat, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{ //nolint:exhaustruct // only need to set a few fields.
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Model:       c.model,
		Temperature: openai.Float(0.2), //nolint:mnd // low temperature.
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{ //nolint:exhaustruct // one variant.
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{ //nolint:exhaustruct // type defaults to json_schema.
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "workout_plan",
					Description: openai.String("A weekly workout plan for one user"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("openai returned no choices", slog.String("model", string(c.model)))
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "openai suggestion received",
		slog.String("model", string(c.model)),
		slog.String("finish_reason", chat.Choices[0].FinishReason),
		slog.Int64("total_tokens", chat.Usage.TotalTokens))

	return chat.Choices[0].Message.Content, nil
}

// jsonSchemaValue renders a schema marshaler into the generic value the SDK expects.
func jsonSchemaValue(m json.Marshaler) (map[string]any, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema")
	}
	var v map[string]any
	if err = json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(err, "unmarshal schema")
	}
	return v, nil
}
