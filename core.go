package toolagent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/rs/zerolog"

	"github.com/feiskyer/toolagent/tools"
)

var (
	// ErrEmptyMessages indicates that the messages array is empty when making a request.
	ErrEmptyMessages = errors.New("messages cannot be empty")

	// ErrNilAgent is returned when Run is called without an agent.
	ErrNilAgent = errors.New("agent cannot be nil")

	// ErrInvalidInstruction indicates that the agent instructions are neither
	// a string nor a supported function.
	ErrInvalidInstruction = errors.New("instructions must be a string or a function returning a string")

	// ErrNoChoices is returned when the model responds without any choice.
	ErrNoChoices = errors.New("chat completion returned no choices")
)

// DefaultMaxTurns bounds the number of model calls in a single Run.
const DefaultMaxTurns = 10

// Observer receives timing and outcome of model and tool calls.
type Observer interface {
	ObserveCompletion(model string, elapsed time.Duration, err error)
	ObserveToolCall(tool string, elapsed time.Duration, err error)
}

// RunOptions tunes a single Run.
type RunOptions struct {
	// ModelOverride replaces the agent's model when set
	ModelOverride string

	// MaxTurns is the maximum number of model calls; zero means DefaultMaxTurns
	MaxTurns int

	// DisableTools withholds the agent's tools from the model, so the first
	// reply is the answer
	DisableTools bool
}

// Runner drives the conversation between an agent, the model and the
// agent's tools. The model proposes tool calls, the runner executes them and
// feeds the results back until the model answers.
type Runner struct {
	// Client is the chat completion API
	Client ChatClient

	logger   zerolog.Logger
	observer Observer
}

// NewRunner creates a new Runner with the provided chat client.
func NewRunner(client ChatClient) *Runner {
	if client == nil {
		panic("chat client cannot be nil")
	}
	return &Runner{
		Client: client,
		logger: zerolog.Nop(),
	}
}

// NewDefaultRunner creates a Runner from environment variables. GITHUB_TOKEN
// selects GitHub Models, OPENAI_API_KEY (and OPENAI_API_BASE) any OpenAI
// compatible endpoint, and AZURE_OPENAI_API_KEY with AZURE_OPENAI_API_BASE an
// Azure OpenAI deployment.
func NewDefaultRunner() (*Runner, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		client, err := NewOpenAIClient(token, DefaultBaseURL)
		if err != nil {
			return nil, err
		}
		return NewRunner(client), nil
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		client, err := NewOpenAIClient(apiKey, os.Getenv("OPENAI_API_BASE"))
		if err != nil {
			return nil, err
		}
		return NewRunner(client), nil
	}

	azureAPIKey := os.Getenv("AZURE_OPENAI_API_KEY")
	azureAPIBase := os.Getenv("AZURE_OPENAI_API_BASE")

	var missingEnvs []string
	if azureAPIKey == "" {
		missingEnvs = append(missingEnvs, "AZURE_OPENAI_API_KEY")
	}
	if azureAPIBase == "" {
		missingEnvs = append(missingEnvs, "AZURE_OPENAI_API_BASE")
	}
	if len(missingEnvs) > 0 {
		return nil, errors.WithHint(
			errors.Newf("required environment variables not set: %s", strings.Join(missingEnvs, ", ")),
			"set GITHUB_TOKEN, OPENAI_API_KEY or the Azure OpenAI variables",
		)
	}

	client, err := NewAzureOpenAIClient(azureAPIKey, azureAPIBase, os.Getenv("AZURE_OPENAI_API_VERSION"))
	if err != nil {
		return nil, err
	}
	return NewRunner(client), nil
}

// WithLogger sets the logger used for the turn-by-turn debug trace.
func (r *Runner) WithLogger(logger zerolog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithObserver registers an observer for model and tool calls.
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// getInstructions safely extracts instructions from the agent based on its type.
func getInstructions(agent *Agent) (string, error) {
	switch i := agent.Instructions.(type) {
	case nil:
		return "", nil
	case string:
		return i, nil
	case func() string:
		return i(), nil
	case func(map[string]interface{}) string:
		return i(nil), nil
	default:
		return "", ErrInvalidInstruction
	}
}

func prepareTools(agent *Agent) []openai.ChatCompletionToolParam {
	var params []openai.ChatCompletionToolParam
	for _, t := range agent.Tools {
		if t == nil {
			continue
		}
		params = append(params, ToolToParam(t))
	}
	return params
}

func prepareMessages(instructions string, history []Message, model string) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if instructions != "" {
		// reasoning models reject the system role
		lower := strings.ToLower(model)
		if strings.Contains(lower, "o1") || strings.Contains(lower, "o3") || strings.Contains(lower, "deepseek") {
			messages = append(messages, openai.UserMessage(instructions))
		} else {
			messages = append(messages, openai.SystemMessage(instructions))
		}
	}

	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			assistantMsg := openai.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 {
				toolCallParams := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					toolCallParams[i] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
				assistantMsg.OfAssistant.ToolCalls = toolCallParams
			}
			messages = append(messages, assistantMsg)
		}
	}
	return messages
}

// getChatCompletion sends one turn of the conversation to the model.
func (r *Runner) getChatCompletion(ctx context.Context, agent *Agent, history []Message, model string, withTools bool, logger zerolog.Logger) (*openai.ChatCompletion, error) {
	instructions, err := getInstructions(agent)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages: prepareMessages(instructions, history, model),
		Model:    openai.ChatModel(model),
	}
	if agent.Temperature != nil {
		params.Temperature = openai.Float(*agent.Temperature)
	}
	if withTools {
		if toolParams := prepareTools(agent); len(toolParams) > 0 {
			params.Tools = toolParams
			params.ParallelToolCalls = openai.Bool(agent.ParallelToolCalls)
		}
	}

	logger.Debug().
		Str("model", model).
		Int("messages", len(params.Messages)).
		Int("tools", len(params.Tools)).
		Msg("requesting chat completion")

	start := time.Now()
	completion, err := r.Client.CreateChatCompletion(ctx, params)
	if err == nil && (completion == nil || len(completion.Choices) == 0) {
		err = ErrNoChoices
	}
	if r.observer != nil {
		r.observer.ObserveCompletion(model, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// callTool runs a single tool, converting panics into errors.
func callTool(ctx context.Context, t tools.Tool, input string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("tool panicked: %v", rec)
		}
	}()
	return t.Call(ctx, input)
}

// handleToolCalls executes the tool calls of one assistant message in order
// and returns the resulting tool messages. Failures are reported to the
// model as "Error: ..." content instead of aborting the run.
func (r *Runner) handleToolCalls(ctx context.Context, toolCalls []ToolCall, available []tools.Tool, logger zerolog.Logger) []Message {
	toolMap := make(map[string]tools.Tool, len(available))
	for _, t := range available {
		if t != nil {
			toolMap[t.Name()] = t
		}
	}

	messages := make([]Message, 0, len(toolCalls))
	for _, call := range toolCalls {
		msg := Message{
			Role:       RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		}

		t, exists := toolMap[call.Name]
		if !exists {
			logger.Warn().Str("tool", call.Name).Msg("model requested an unknown tool")
			msg.Content = fmt.Sprintf("Error: tool %q not found", call.Name)
			messages = append(messages, msg)
			continue
		}

		input, err := ParseToolInput(call.Arguments)
		if err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Str("arguments", call.Arguments).Msg("failed to parse tool arguments")
			msg.Content = fmt.Sprintf("Error: failed to parse arguments for tool %q: %v", call.Name, err)
			messages = append(messages, msg)
			continue
		}

		start := time.Now()
		out, err := callTool(ctx, t, input)
		if r.observer != nil {
			r.observer.ObserveToolCall(call.Name, time.Since(start), err)
		}
		if err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Str("input", input).Msg("tool execution failed")
			msg.Content = fmt.Sprintf("Error: tool %q execution failed: %v", call.Name, err)
			messages = append(messages, msg)
			continue
		}

		logger.Debug().Str("tool", call.Name).Str("input", input).Str("output", out).Msg("tool executed")
		msg.Content = out
		messages = append(messages, msg)
	}
	return messages
}

// Run executes an interaction with the model using the provided agent.
// It returns the messages produced during the run; the input messages are
// not repeated. Tool failures never abort the run, only model errors and
// context cancellation do.
func (r *Runner) Run(ctx context.Context, agent *Agent, messages []Message, opts RunOptions) (*Response, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	if agent == nil {
		return nil, ErrNilAgent
	}

	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	model := opts.ModelOverride
	if model == "" {
		model = agent.Model
	}
	logger := r.logger.With().Str("agent", agent.Name).Logger()

	history := make([]Message, len(messages), len(messages)+2*maxTurns)
	copy(history, messages)
	initLen := len(messages)

	response := &Response{Agent: agent}
	for response.Turns < maxTurns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		completion, err := r.getChatCompletion(ctx, agent, history, model, !opts.DisableTools, logger)
		response.Turns++
		if err != nil {
			return nil, errors.Wrapf(err, "turn %d", response.Turns)
		}

		choice := completion.Choices[0].Message
		message := Message{
			Role:    RoleAssistant,
			Content: choice.Content,
			Sender:  agent.Name,
		}
		for _, tc := range choice.ToolCalls {
			message.ToolCalls = append(message.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if opts.DisableTools && len(message.ToolCalls) > 0 {
			// nothing can answer these calls, keep the history sendable
			logger.Warn().Int("tool_calls", len(message.ToolCalls)).Msg("dropping tool calls while tools are disabled")
			message.ToolCalls = nil
		}
		history = append(history, message)

		logger.Debug().
			Int("turn", response.Turns).
			Str("content", message.Content).
			Int("tool_calls", len(message.ToolCalls)).
			Msg("received completion")

		if len(message.ToolCalls) == 0 {
			response.Completed = true
			break
		}

		history = append(history, r.handleToolCalls(ctx, message.ToolCalls, agent.Tools, logger)...)
	}

	if !response.Completed {
		logger.Warn().Int("max_turns", maxTurns).Msg("stopped at turn limit without a final answer")
	}
	response.Messages = history[initLen:]
	return response, nil
}
