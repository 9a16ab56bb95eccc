package toolagent

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is the GitHub Models inference endpoint.
	DefaultBaseURL = "https://models.github.ai/inference"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "openai/gpt-4o"
	// DefaultAzureAPIVersion is used for Azure OpenAI when no version is configured.
	DefaultAzureAPIVersion = "2024-06-01"
)

// ChatClient defines the chat completion API used by the Runner.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// openAIClientWrapper wraps the OpenAI client
type openAIClientWrapper struct {
	client openai.Client
}

// NewOpenAIClient creates a client for an OpenAI compatible endpoint. An
// empty baseURL uses the SDK default (api.openai.com).
func NewOpenAIClient(apiKey, baseURL string, opts ...option.RequestOption) (ChatClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key cannot be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &openAIClientWrapper{
		client: openai.NewClient(reqOpts...),
	}, nil
}

// NewAzureOpenAIClient creates a client for an Azure OpenAI deployment.
func NewAzureOpenAIClient(apiKey, endpoint, apiVersion string, opts ...option.RequestOption) (ChatClient, error) {
	if apiKey == "" || endpoint == "" {
		return nil, errors.New("azure api key and endpoint are required")
	}
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	reqOpts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	reqOpts = append(reqOpts, opts...)

	return &openAIClientWrapper{
		client: openai.NewClient(reqOpts...),
	}, nil
}

// CreateChatCompletion implements ChatClient interface
func (c *openAIClientWrapper) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat completion")
	}

	return completion, nil
}
