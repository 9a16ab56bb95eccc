package toolagent

import (
	"context"
	"sync"

	"github.com/openai/openai-go"
)

// MockChatClient replays scripted completions and records requests.
type MockChatClient struct {
	mu        sync.Mutex
	responses []*openai.ChatCompletion
	errors    []error
	Requests  []openai.ChatCompletionNewParams
}

func NewMockChatClient() *MockChatClient {
	return &MockChatClient{}
}

func (m *MockChatClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.responses) == 0 {
		return textCompletion("no more scripted responses"), nil
	}

	resp, err := m.responses[0], m.errors[0]
	m.responses, m.errors = m.responses[1:], m.errors[1:]
	return resp, err
}

// AddResponse queues a completion.
func (m *MockChatClient) AddResponse(resp *openai.ChatCompletion) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errors = append(m.errors, nil)
	return m
}

// AddError queues a failing call.
func (m *MockChatClient) AddError(err error) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errors = append(m.errors, err)
	return m
}

func (m *MockChatClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func textCompletion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Content: content,
				},
			},
		},
	}
}

// MockToolCall builds the tool call part of a completion.
type MockToolCall struct {
	ID   string
	Name string
	Args string
}

func (m MockToolCall) ToOpenAI() openai.ChatCompletionMessageToolCall {
	return openai.ChatCompletionMessageToolCall{
		ID: m.ID,
		Function: openai.ChatCompletionMessageToolCallFunction{
			Name:      m.Name,
			Arguments: m.Args,
		},
	}
}

func toolCallCompletion(calls ...MockToolCall) *openai.ChatCompletion {
	toolCalls := make([]openai.ChatCompletionMessageToolCall, len(calls))
	for i, c := range calls {
		toolCalls[i] = c.ToOpenAI()
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					ToolCalls: toolCalls,
				},
			},
		},
	}
}
