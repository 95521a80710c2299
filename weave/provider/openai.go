// Package provider implements the external collaborators the engine
// consumes: a streaming text-generation client for OpenAI-compatible chat
// endpoints, and an image-generation client for the Replicate predictions
// API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/world-weaver/weave"
)

// OpenAIChat streams chat completions from any OpenAI-compatible endpoint
// (OpenAI itself, OpenRouter, local gateways) and satisfies
// weave.ChatStreamer.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat builds a client for the given model. baseURL may be empty
// for the OpenAI default.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIChat{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// StreamChat issues one streaming request and fans the response out as
// weave fragments: zero or more deltas, then exactly one terminal fragment
// (completion with usage, or error), then the channel closes. No retries
// happen here; transport failures propagate to the consumer.
func (p *OpenAIChat) StreamChat(ctx context.Context, req weave.Request) <-chan weave.Fragment {
	out := make(chan weave.Fragment)

	go func() {
		defer close(out)

		msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
		if req.System != "" {
			msgs = append(msgs, openai.SystemMessage(req.System))
		}
		for _, m := range req.Messages {
			switch m.Role {
			case weave.RoleAssistant:
				msgs = append(msgs, openai.AssistantMessage(m.Content))
			default:
				msgs = append(msgs, openai.UserMessage(m.Content))
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(p.model),
			Messages: msgs,
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if req.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					out <- weave.Fragment{Delta: delta}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- weave.Fragment{Err: fmt.Errorf("chat stream: %w", err)}
			return
		}

		text := ""
		if len(acc.Choices) > 0 {
			text = acc.Choices[0].Message.Content
		}
		out <- weave.Fragment{Done: &weave.Completion{
			Text:         text,
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		}}
	}()

	return out
}

// Client exposes the underlying OpenAI client for non-streaming structured
// calls (see CallWithRetry).
func (p *OpenAIChat) Client() *openai.Client {
	return &p.client
}

// CallWithRetry issues a Responses API call, retrying rate limits and
// server errors with fixed backoff schedules. Streaming narrative requests
// never retry; this is for one-shot structured calls like world generation.
func CallWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaitTimes := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				if attempt < maxRetries-1 {
					if sleepErr := sleepCtx(ctx, rateLimitWaitTimes[attempt]); sleepErr != nil {
						return nil, sleepErr
					}
					continue
				}
			} else if isServerError(err) {
				if attempt < maxRetries-1 {
					if sleepErr := sleepCtx(ctx, serverErrorWaitTimes[attempt]); sleepErr != nil {
						return nil, sleepErr
					}
					continue
				}
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to API issues", maxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// GenerateSchema reflects T into a strict JSON schema suitable for
// structured-output requests.
func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureStrictCompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureStrictCompliance rewrites a reflected schema into the shape strict
// structured outputs demand: closed objects with every property required.
func ensureStrictCompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []interface{}
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureStrictCompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureStrictCompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureStrictCompliance(additionalProps)
	}
}
