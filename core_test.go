package toolagent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feiskyer/toolagent/tools"
)

type recordingObserver struct {
	mu          sync.Mutex
	completions []error
	toolCalls   map[string][]error
}

func (o *recordingObserver) ObserveCompletion(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completions = append(o.completions, err)
}

func (o *recordingObserver) ObserveToolCall(tool string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.toolCalls == nil {
		o.toolCalls = make(map[string][]error)
	}
	o.toolCalls[tool] = append(o.toolCalls[tool], err)
}

func newTestAgent() *Agent {
	return NewAgent("TestAgent").
		AddTool(tools.NewDefaultRegistry(nil).List()...)
}

func userMessages(q string) []Message {
	return []Message{UserMessage(q)}
}

func TestNewRunnerPanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewRunner(nil) })
}

func TestNewDefaultRunner(t *testing.T) {
	for _, name := range []string{"GITHUB_TOKEN", "OPENAI_API_KEY", "OPENAI_API_BASE", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_API_BASE"} {
		t.Setenv(name, "")
	}

	_, err := NewDefaultRunner()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_OPENAI_API_KEY")

	t.Setenv("GITHUB_TOKEN", "ghp_test")
	runner, err := NewDefaultRunner()
	require.NoError(t, err)
	assert.NotNil(t, runner.Client)

	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")
	t.Setenv("AZURE_OPENAI_API_BASE", "https://example.openai.azure.com")
	runner, err = NewDefaultRunner()
	require.NoError(t, err)
	assert.NotNil(t, runner.Client)
}

func TestRunWithoutToolCalls(t *testing.T) {
	client := NewMockChatClient().AddResponse(textCompletion("Hello there"))
	runner := NewRunner(client)

	resp, err := runner.Run(context.Background(), newTestAgent(), userMessages("Hello"), RunOptions{})
	require.NoError(t, err)

	assert.True(t, resp.Completed)
	assert.Equal(t, 1, resp.Turns)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, RoleAssistant, resp.Messages[0].Role)
	assert.Equal(t, "TestAgent", resp.Messages[0].Sender)
	assert.Equal(t, "Hello there", resp.FinalContent())
	assert.NotNil(t, resp.Agent)
}

func TestRunToolRoundTrip(t *testing.T) {
	client := NewMockChatClient().
		AddResponse(toolCallCompletion(MockToolCall{ID: "call_1", Name: "Calculator", Args: `{"input": "25 * 4 + 10"}`})).
		AddResponse(textCompletion("25 * 4 + 10 = 110"))
	observer := &recordingObserver{}
	runner := NewRunner(client).WithObserver(observer)

	resp, err := runner.Run(context.Background(), newTestAgent(), userMessages("What is 25 * 4 + 10?"), RunOptions{})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 3)
	assert.Equal(t, RoleAssistant, resp.Messages[0].Role)
	require.Len(t, resp.Messages[0].ToolCalls, 1)
	assert.Equal(t, "Calculator", resp.Messages[0].ToolCalls[0].Name)

	toolMsg := resp.Messages[1]
	assert.Equal(t, RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "Calculator", toolMsg.ToolName)
	assert.Equal(t, "110", toolMsg.Content)

	assert.Equal(t, "25 * 4 + 10 = 110", resp.FinalContent())
	assert.Equal(t, 2, resp.Turns)
	assert.True(t, resp.Completed)

	require.Equal(t, 2, client.RequestCount())
	first := client.Requests[0]
	require.Len(t, first.Tools, 4)
	assert.Equal(t, "Calculator", first.Tools[0].Function.Name)
	// system + user
	assert.Len(t, first.Messages, 2)
	// system + user + assistant + tool
	assert.Len(t, client.Requests[1].Messages, 4)

	assert.Len(t, observer.completions, 2)
	assert.Equal(t, []error{nil}, observer.toolCalls["Calculator"])
}

func TestRunMultipleToolCallsInOneTurn(t *testing.T) {
	client := NewMockChatClient().
		AddResponse(toolCallCompletion(
			MockToolCall{ID: "a", Name: "reverse_string", Args: `{"input": "abc"}`},
			MockToolCall{ID: "b", Name: "Calculator", Args: `{"expression": "2 ** 8"}`},
		)).
		AddResponse(textCompletion("done"))

	resp, err := NewRunner(client).Run(context.Background(), newTestAgent(), userMessages("both"), RunOptions{})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 4)
	assert.Equal(t, "cba", resp.Messages[1].Content)
	assert.Equal(t, "a", resp.Messages[1].ToolCallID)
	assert.Equal(t, "256", resp.Messages[2].Content)
	assert.Equal(t, "b", resp.Messages[2].ToolCallID)
}

func TestRunToolFailuresAreReportedToModel(t *testing.T) {
	failing := tools.New("failing", "always fails", func(string) (string, error) {
		return "", errors.New("boom")
	})
	panicking := tools.New("panicking", "always panics", func(string) (string, error) {
		panic("kaboom")
	})
	agent := newTestAgent().AddTool(failing, panicking)

	client := NewMockChatClient().
		AddResponse(toolCallCompletion(
			MockToolCall{ID: "1", Name: "missing", Args: `{}`},
			MockToolCall{ID: "2", Name: "Calculator", Args: `{"a": "1", "b": "2"}`},
			MockToolCall{ID: "3", Name: "failing", Args: `{"input": "x"}`},
			MockToolCall{ID: "4", Name: "panicking", Args: `{"input": "x"}`},
		)).
		AddResponse(textCompletion("sorry"))
	observer := &recordingObserver{}

	resp, err := NewRunner(client).WithObserver(observer).Run(context.Background(), agent, userMessages("q"), RunOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 6)

	for i, want := range []string{"not found", "failed to parse arguments", "boom", "kaboom"} {
		content := resp.Messages[i+1].Content
		assert.True(t, strings.HasPrefix(content, "Error: "), content)
		assert.Contains(t, content, want)
	}
	assert.Equal(t, "sorry", resp.FinalContent())
	assert.Len(t, observer.toolCalls["failing"], 1)
	assert.Error(t, observer.toolCalls["panicking"][0])
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	client := NewMockChatClient()
	for i := 0; i < 5; i++ {
		client.AddResponse(toolCallCompletion(MockToolCall{ID: "loop", Name: "current_time", Args: `{"input": ""}`}))
	}

	resp, err := NewRunner(client).Run(context.Background(), newTestAgent(), userMessages("loop"), RunOptions{MaxTurns: 2})
	require.NoError(t, err)

	assert.False(t, resp.Completed)
	assert.Equal(t, 2, resp.Turns)
	assert.Equal(t, 2, client.RequestCount())
	assert.Len(t, resp.Messages, 4)
}

func TestRunDisableTools(t *testing.T) {
	client := NewMockChatClient().AddResponse(textCompletion("2"))

	resp, err := NewRunner(client).Run(context.Background(), newTestAgent(), userMessages("What is 1+1?"), RunOptions{DisableTools: true})
	require.NoError(t, err)

	require.Equal(t, 1, client.RequestCount())
	assert.Empty(t, client.Requests[0].Tools, "tools are not advertised")
	assert.True(t, resp.Completed)
	assert.Equal(t, "2", resp.FinalContent())
}

func TestRunDisableToolsDropsUnexpectedToolCalls(t *testing.T) {
	client := NewMockChatClient().
		AddResponse(toolCallCompletion(MockToolCall{ID: "1", Name: "Calculator", Args: `{"input": "1+1"}`}))

	resp, err := NewRunner(client).Run(context.Background(), newTestAgent(), userMessages("q"), RunOptions{DisableTools: true})
	require.NoError(t, err)

	assert.Equal(t, 1, client.RequestCount())
	require.Len(t, resp.Messages, 1)
	assert.Empty(t, resp.Messages[0].ToolCalls, "no unanswered tool calls are left in the history")
}

func TestRunErrors(t *testing.T) {
	agent := newTestAgent()

	t.Run("empty messages", func(t *testing.T) {
		_, err := NewRunner(NewMockChatClient()).Run(context.Background(), agent, nil, RunOptions{})
		assert.True(t, errors.Is(err, ErrEmptyMessages))
	})

	t.Run("nil agent", func(t *testing.T) {
		_, err := NewRunner(NewMockChatClient()).Run(context.Background(), nil, userMessages("q"), RunOptions{})
		assert.True(t, errors.Is(err, ErrNilAgent))
	})

	t.Run("no choices", func(t *testing.T) {
		client := NewMockChatClient().AddResponse(&openai.ChatCompletion{})
		_, err := NewRunner(client).Run(context.Background(), agent, userMessages("q"), RunOptions{})
		assert.True(t, errors.Is(err, ErrNoChoices))
	})

	t.Run("client error", func(t *testing.T) {
		client := NewMockChatClient().AddError(errors.New("rate limited"))
		_, err := NewRunner(client).Run(context.Background(), agent, userMessages("q"), RunOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("invalid instructions", func(t *testing.T) {
		bad := NewAgent("bad").WithInstructions(42)
		_, err := NewRunner(NewMockChatClient()).Run(context.Background(), bad, userMessages("q"), RunOptions{})
		assert.True(t, errors.Is(err, ErrInvalidInstruction))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		client := NewMockChatClient()
		_, err := NewRunner(client).Run(ctx, agent, userMessages("q"), RunOptions{})
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 0, client.RequestCount())
	})
}

func TestRunModelOverrideAndInstructions(t *testing.T) {
	client := NewMockChatClient().AddResponse(textCompletion("ok"))
	agent := NewAgent("dated").
		WithModel("openai/gpt-4o-mini").
		WithTemperature(0).
		WithInstructions(func() string { return "Today is 2026-10-19." })

	_, err := NewRunner(client).Run(context.Background(), agent, userMessages("q"), RunOptions{ModelOverride: "openai/gpt-4.1"})
	require.NoError(t, err)

	require.Equal(t, 1, client.RequestCount())
	req := client.Requests[0]
	assert.Equal(t, "openai/gpt-4.1", string(req.Model))
	assert.Len(t, req.Messages, 2)
	// agent without tools advertises none
	assert.Empty(t, req.Tools)
}

func TestGetInstructions(t *testing.T) {
	tests := []struct {
		name         string
		instructions interface{}
		expected     string
		wantErr      bool
	}{
		{name: "string", instructions: "plain", expected: "plain"},
		{name: "nil", instructions: nil, expected: ""},
		{name: "func", instructions: func() string { return "computed" }, expected: "computed"},
		{name: "func with variables", instructions: func(map[string]interface{}) string { return "vars" }, expected: "vars"},
		{name: "invalid", instructions: 3.14, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getInstructions(&Agent{Instructions: tt.instructions})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPrepareMessages(t *testing.T) {
	history := []Message{
		UserMessage("hi"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "Calculator", Arguments: `{"input":"1"}`}}},
		{Role: RoleTool, ToolCallID: "1", Content: "1"},
		{Role: RoleAssistant, Content: "one"},
	}

	msgs := prepareMessages("be brief", history, "openai/gpt-4o")
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.NotNil(t, msgs[3].OfTool)

	// reasoning models get their instructions as a user message
	msgs = prepareMessages("be brief", nil, "o3-mini")
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].OfUser)

	assert.Empty(t, prepareMessages("", nil, "openai/gpt-4o"))
}
